// Package remote implements engine.Map by driving a browser-side map over a websocket.
//
// Commands flow to the browser as {"op": ..., "args": ...} frames. The browser reports
// camera moves, container size, style loads and pointer events back; camera state is
// mirrored locally so reads never block on a round trip.
//
// Every style sent to the browser carries a sequence number (0 for the style in init)
// which the browser echoes in its style.load message. Loads for a superseded style
// are ignored, so load callbacks only run once the latest style is ready.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"notemap/pkg/engine"
	"notemap/pkg/logging"
	"notemap/pkg/model"
)

const (
	earthRadius = 6378137.0
	tileSize    = 512.0
)

// Conn is the subset of *websocket.Conn used by the bridge.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

type command struct {
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type inbound struct {
	Type   string          `json:"type"`
	Event  string          `json:"event,omitempty"`
	Layer  string          `json:"layer,omitempty"`
	Popup  string          `json:"popup,omitempty"`
	Center *model.LngLat   `json:"center,omitempty"`
	Zoom   *float64        `json:"zoom,omitempty"`
	Width  float64         `json:"width,omitempty"`
	Height float64         `json:"height,omitempty"`
	Seq    int             `json:"seq,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type handler struct {
	event, layer string
	fn           engine.Handler
}

// Map is a browser-backed engine.Map.
type Map struct {
	conn Conn
	post func(func())

	wmu     sync.Mutex
	writeOK bool

	mu          sync.Mutex
	center      model.LngLat
	zoom        float64
	minZoom     float64
	maxZoom     float64
	width       float64
	height      float64
	styleLoaded bool
	styleSeq    int
	images      map[string]bool
	sources     map[string]bool
	layers      map[string]bool
	handlers    []handler
	onceLoad    []func()
	popups      map[string]*Popup
	other       func(msgType string, data json.RawMessage)
}

// New sends the init command and returns the bridge. Call Serve to process browser messages.
func New(conn Conn, opts engine.Options) (*Map, error) {
	m := &Map{
		conn:    conn,
		post:    opts.Post,
		writeOK: true,
		center:  opts.Center,
		zoom:    opts.Zoom,
		minZoom: opts.MinZoom,
		maxZoom: opts.MaxZoom,
		width:   800,
		height:  600,
		images:  make(map[string]bool),
		sources: make(map[string]bool),
		layers:  make(map[string]bool),
		popups:  make(map[string]*Popup),
	}
	err := m.send("init", map[string]any{
		"style":   opts.Style,
		"center":  opts.Center,
		"zoom":    opts.Zoom,
		"minZoom": opts.MinZoom,
		"maxZoom": opts.MaxZoom,
		"seq":     0,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Dial returns an engine.Factory bound to one connection.
func Dial(conn Conn) engine.Factory {
	return func(opts engine.Options) (engine.Map, error) {
		return New(conn, opts)
	}
}

func (m *Map) send(op string, args any) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	if !m.writeOK {
		return errors.New("connection closed")
	}
	logging.TraceDefault("Engine: Command", "op", op)
	if err := m.conn.WriteJSON(command{Op: op, Args: args}); err != nil {
		m.writeOK = false
		slog.Warn("Engine: Browser write failed", "op", op, "error", err)
		return fmt.Errorf("failed to send %s: %w", op, err)
	}
	return nil
}

// Serve reads browser messages until ctx is done or the connection fails.
func (m *Map) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = m.conn.Close()
	}()

	for {
		var msg inbound
		if err := m.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read browser message: %w", err)
		}
		m.handle(msg)
	}
}

func (m *Map) deliver(fn func()) {
	if m.post != nil {
		m.post(fn)
		return
	}
	fn()
}

func (m *Map) handle(msg inbound) {
	logging.TraceDefault("Engine: Browser message", "type", msg.Type, "layer", msg.Layer)
	switch msg.Type {
	case "camera":
		m.mu.Lock()
		if msg.Center != nil {
			m.center = *msg.Center
		}
		if msg.Zoom != nil {
			m.zoom = *msg.Zoom
		}
		m.mu.Unlock()

	case "size":
		m.mu.Lock()
		if msg.Width > 0 && msg.Height > 0 {
			m.width, m.height = msg.Width, msg.Height
		}
		m.mu.Unlock()

	case "style.load":
		m.mu.Lock()
		if msg.Seq != m.styleSeq {
			current := m.styleSeq
			m.mu.Unlock()
			slog.Debug("Engine: Ignoring load of superseded style", "seq", msg.Seq, "current", current)
			return
		}
		m.styleLoaded = true
		pending := m.onceLoad
		m.onceLoad = nil
		fns := m.handlersFor(engine.EventStyleLoad, "")
		m.mu.Unlock()
		for _, fn := range pending {
			m.deliver(fn)
		}
		for _, fn := range fns {
			fn := fn
			m.deliver(func() { fn(engine.Event{}) })
		}

	case "event":
		var ev engine.Event
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				slog.Debug("Engine: Dropping malformed event", "event", msg.Event, "error", err)
				return
			}
		}
		m.mu.Lock()
		fns := m.handlersFor(msg.Event, msg.Layer)
		m.mu.Unlock()
		for _, fn := range fns {
			fn := fn
			m.deliver(func() { fn(ev) })
		}

	case "popup":
		m.mu.Lock()
		p := m.popups[msg.Popup]
		m.mu.Unlock()
		if p == nil {
			return
		}
		p.pointer(msg.Event, m.deliver)

	default:
		m.mu.Lock()
		fn := m.other
		m.mu.Unlock()
		if fn == nil {
			slog.Debug("Engine: Unknown browser message", "type", msg.Type)
			return
		}
		data := msg.Data
		m.deliver(func() { fn(msg.Type, data) })
	}
}

// OnMessage registers fn for browser messages the engine does not consume,
// such as workspace replies. fn runs like an event handler.
func (m *Map) OnMessage(fn func(msgType string, data json.RawMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.other = fn
}

func (m *Map) handlersFor(event, layer string) []engine.Handler {
	var fns []engine.Handler
	for _, h := range m.handlers {
		if h.event == event && h.layer == layer {
			fns = append(fns, h.fn)
		}
	}
	return fns
}

func (m *Map) Center() model.LngLat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

func (m *Map) SetCenter(ll model.LngLat) {
	m.mu.Lock()
	m.center = ll
	m.mu.Unlock()
	_ = m.send("setCenter", ll)
}

func (m *Map) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

func (m *Map) SetZoom(z float64) {
	m.mu.Lock()
	m.zoom = z
	m.mu.Unlock()
	_ = m.send("setZoom", z)
}

func (m *Map) SetMinZoom(z float64) {
	m.mu.Lock()
	m.minZoom = z
	m.mu.Unlock()
	_ = m.send("setMinZoom", z)
}

func (m *Map) SetMaxZoom(z float64) {
	m.mu.Lock()
	m.maxZoom = z
	m.mu.Unlock()
	_ = m.send("setMaxZoom", z)
}

// FitBounds asks the browser to fit b and predicts the resulting camera locally.
func (m *Map) FitBounds(b orb.Bound, padding int, maxZoom float64) {
	m.mu.Lock()
	c := b.Center()
	m.center = model.LngLat{Lng: c.Lon(), Lat: c.Lat()}
	m.zoom = fitZoom(b, m.width-2*float64(padding), m.height-2*float64(padding), m.minZoom, maxZoom)
	m.mu.Unlock()

	_ = m.send("fitBounds", map[string]any{
		"bounds":  [][2]float64{{b.Min.Lon(), b.Min.Lat()}, {b.Max.Lon(), b.Max.Lat()}},
		"padding": padding,
		"maxZoom": maxZoom,
	})
}

// SetStyle sends s tagged with the next style sequence number.
func (m *Map) SetStyle(s engine.Style) {
	m.mu.Lock()
	m.styleLoaded = false
	m.styleSeq++
	seq := m.styleSeq
	m.images = make(map[string]bool)
	m.sources = make(map[string]bool)
	m.layers = make(map[string]bool)
	m.mu.Unlock()
	_ = m.send("setStyle", map[string]any{"style": s, "seq": seq})
}

func (m *Map) IsStyleLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.styleLoaded
}

func (m *Map) OnceStyleLoad(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onceLoad = append(m.onceLoad, fn)
}

func (m *Map) HasImage(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images[id]
}

// AddImage ships the image as a PNG data URI.
func (m *Map) AddImage(id string, img image.Image, pixelRatio float64) error {
	uri, err := engine.EncodePNGDataURI(img)
	if err != nil {
		return err
	}
	if err := m.send("addImage", map[string]any{"id": id, "url": uri, "pixelRatio": pixelRatio}); err != nil {
		return err
	}
	m.mu.Lock()
	m.images[id] = true
	m.mu.Unlock()
	return nil
}

func (m *Map) RemoveImage(id string) {
	m.mu.Lock()
	delete(m.images, id)
	m.mu.Unlock()
	_ = m.send("removeImage", map[string]any{"id": id})
}

func (m *Map) Source(id string) (engine.Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sources[id] {
		return nil, false
	}
	return &source{m: m, id: id}, true
}

func (m *Map) AddSource(id string, fc *geojson.FeatureCollection) error {
	if err := m.send("addSource", map[string]any{"id": id, "data": fc}); err != nil {
		return err
	}
	m.mu.Lock()
	m.sources[id] = true
	m.mu.Unlock()
	return nil
}

func (m *Map) AddLayer(l engine.Layer) error {
	if err := m.send("addLayer", l); err != nil {
		return err
	}
	m.mu.Lock()
	m.layers[l.ID] = true
	m.mu.Unlock()
	return nil
}

func (m *Map) HasLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layers[id]
}

// On subscribes locally and asks the browser to forward the event.
func (m *Map) On(event, layerID string, h engine.Handler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, handler{event: event, layer: layerID, fn: h})
	m.mu.Unlock()
	if event != engine.EventStyleLoad {
		_ = m.send("subscribe", map[string]any{"event": event, "layer": layerID})
	}
}

func (m *Map) SetCursor(cursor string) {
	_ = m.send("setCursor", cursor)
}

// Unproject converts a container pixel into a coordinate using the mirrored camera.
func (m *Map) Unproject(p engine.ScreenPoint) model.LngLat {
	m.mu.Lock()
	center, zoom, w, h := m.center, m.zoom, m.width, m.height
	m.mu.Unlock()
	return unproject(p, center, zoom, w, h)
}

func (m *Map) Resize() {
	_ = m.send("resize", nil)
}

func (m *Map) NewPopup(opts engine.PopupOptions) engine.Popup {
	p := &Popup{m: m, id: uuid.NewString()}
	m.mu.Lock()
	m.popups[p.id] = p
	m.mu.Unlock()
	_ = m.send("popup.create", map[string]any{
		"id":           p.id,
		"closeButton":  opts.CloseButton,
		"closeOnClick": opts.CloseOnClick,
		"offset":       opts.Offset,
		"maxWidth":     opts.MaxWidth,
	})
	return p
}

func (m *Map) Remove() {
	_ = m.send("remove", nil)
	m.mu.Lock()
	m.handlers = nil
	m.onceLoad = nil
	m.popups = make(map[string]*Popup)
	m.mu.Unlock()
}

type source struct {
	m  *Map
	id string
}

func (s *source) SetData(fc *geojson.FeatureCollection) error {
	return s.m.send("setData", map[string]any{"id": s.id, "data": fc})
}

// Popup is a browser popup addressed by id.
type Popup struct {
	m  *Map
	id string

	mu    sync.Mutex
	open  bool
	enter func()
	leave func()
}

func (p *Popup) SetLngLat(ll model.LngLat) {
	_ = p.m.send("popup.setLngLat", map[string]any{"id": p.id, "lngLat": ll})
}

func (p *Popup) SetHTML(html string) {
	_ = p.m.send("popup.setHTML", map[string]any{"id": p.id, "html": html})
}

func (p *Popup) Show() {
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()
	_ = p.m.send("popup.show", map[string]any{"id": p.id})
}

func (p *Popup) Remove() {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
	_ = p.m.send("popup.remove", map[string]any{"id": p.id})
}

func (p *Popup) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *Popup) OnPointer(enter, leave func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enter, p.leave = enter, leave
}

func (p *Popup) pointer(event string, deliver func(func())) {
	p.mu.Lock()
	var fn func()
	switch event {
	case engine.EventMouseEnter:
		fn = p.enter
	case engine.EventMouseLeave:
		fn = p.leave
	}
	p.mu.Unlock()
	if fn != nil {
		deliver(fn)
	}
}

func metersPerPixel(zoom float64) float64 {
	return 2 * math.Pi * earthRadius / (tileSize * math.Pow(2, zoom))
}

func unproject(p engine.ScreenPoint, center model.LngLat, zoom, w, h float64) model.LngLat {
	c := project.WGS84.ToMercator(orb.Point{center.Lng, center.Lat})
	mpp := metersPerPixel(zoom)
	x := c[0] + (p.X-w/2)*mpp
	y := c[1] - (p.Y-h/2)*mpp
	ll := project.Mercator.ToWGS84(orb.Point{x, y})
	return model.LngLat{Lng: ll.Lon(), Lat: ll.Lat()}
}

// fitZoom returns the largest zoom at which b fits into a w x h viewport.
func fitZoom(b orb.Bound, w, h, minZoom, maxZoom float64) float64 {
	if maxZoom <= 0 {
		maxZoom = model.MaxZoomLevel
	}
	if w <= 0 || h <= 0 {
		return minZoom
	}
	sw := project.WGS84.ToMercator(b.Min)
	ne := project.WGS84.ToMercator(b.Max)
	dx, dy := math.Abs(ne[0]-sw[0]), math.Abs(ne[1]-sw[1])
	if dx == 0 && dy == 0 {
		return maxZoom
	}
	world := 2 * math.Pi * earthRadius
	zx := math.Inf(1)
	if dx > 0 {
		zx = math.Log2(w * world / (tileSize * dx))
	}
	zy := math.Inf(1)
	if dy > 0 {
		zy = math.Log2(h * world / (tileSize * dy))
	}
	z := math.Min(zx, zy)
	return math.Max(minZoom, math.Min(maxZoom, z))
}
