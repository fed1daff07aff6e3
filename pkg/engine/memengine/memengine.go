// Package memengine is an in-memory engine.Map that records every call.
// It backs the view tests and headless runs.
package memengine

import (
	"image"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"notemap/pkg/engine"
	"notemap/pkg/model"
)

// Image is a registered image.
type Image struct {
	Image      image.Image
	PixelRatio float64
}

// Calls counts the state-changing calls made against a Map.
type Calls struct {
	SetCenter   int
	SetZoom     int
	SetMinZoom  int
	SetMaxZoom  int
	FitBounds   int
	SetStyle    int
	AddImage    int
	RemoveImage int
	AddSource   int
	SetData     int
	AddLayer    int
	Resize      int
	SetCursor   int
}

type handler struct {
	event, layer string
	fn           engine.Handler
}

// Map is an in-memory engine.Map.
type Map struct {
	mu sync.Mutex

	// AutoLoadStyle completes every style load inside SetStyle.
	AutoLoadStyle bool

	opts        engine.Options
	center      model.LngLat
	zoom        float64
	minZoom     float64
	maxZoom     float64
	style       engine.Style
	styleLoaded bool
	lastBounds  orb.Bound
	cursor      string
	removed     bool

	images   map[string]Image
	sources  map[string]*Source
	layers   []engine.Layer
	handlers []handler
	onceLoad []func()
	popups   []*Popup

	calls Calls
}

// New creates a map with the given options and a loaded style.
func New(opts engine.Options) *Map {
	return &Map{
		AutoLoadStyle: true,
		opts:          opts,
		center:        opts.Center,
		zoom:          opts.Zoom,
		minZoom:       opts.MinZoom,
		maxZoom:       opts.MaxZoom,
		style:         opts.Style,
		styleLoaded:   true,
		images:        make(map[string]Image),
		sources:       make(map[string]*Source),
	}
}

// Factory returns an engine.Factory that records every created map in created.
func Factory(created *[]*Map) engine.Factory {
	return func(opts engine.Options) (engine.Map, error) {
		m := New(opts)
		if created != nil {
			*created = append(*created, m)
		}
		return m, nil
	}
}

// Calls returns a copy of the call counters.
func (m *Map) Calls() Calls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ResetCalls zeroes the call counters.
func (m *Map) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = Calls{}
}

func (m *Map) Center() model.LngLat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

func (m *Map) SetCenter(ll model.LngLat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.SetCenter++
	m.center = ll
}

func (m *Map) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

func (m *Map) SetZoom(z float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.SetZoom++
	m.zoom = z
}

func (m *Map) SetMinZoom(z float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.SetMinZoom++
	m.minZoom = z
}

func (m *Map) SetMaxZoom(z float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.SetMaxZoom++
	m.maxZoom = z
}

// ZoomRange returns the current min and max zoom.
func (m *Map) ZoomRange() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minZoom, m.maxZoom
}

// FitBounds centers on the bound. Zoom is left unchanged unless maxZoom caps it.
func (m *Map) FitBounds(b orb.Bound, padding int, maxZoom float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.FitBounds++
	m.lastBounds = b
	c := b.Center()
	m.center = model.LngLat{Lng: c.Lon(), Lat: c.Lat()}
	if maxZoom > 0 && m.zoom > maxZoom {
		m.zoom = maxZoom
	}
}

// LastBounds returns the bound of the latest FitBounds call.
func (m *Map) LastBounds() orb.Bound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBounds
}

// SetStyle drops sources, layers and images like a real engine does.
func (m *Map) SetStyle(s engine.Style) {
	m.mu.Lock()
	m.calls.SetStyle++
	m.style = s
	m.styleLoaded = false
	m.images = make(map[string]Image)
	m.sources = make(map[string]*Source)
	m.layers = nil
	auto := m.AutoLoadStyle
	m.mu.Unlock()

	if auto {
		m.CompleteStyleLoad()
	}
}

// Style returns the current style.
func (m *Map) Style() engine.Style {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style
}

// CompleteStyleLoad marks the style loaded and fires pending load callbacks.
func (m *Map) CompleteStyleLoad() {
	m.mu.Lock()
	m.styleLoaded = true
	pending := m.onceLoad
	m.onceLoad = nil
	var loadHandlers []engine.Handler
	for _, h := range m.handlers {
		if h.event == engine.EventStyleLoad {
			loadHandlers = append(loadHandlers, h.fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	for _, h := range loadHandlers {
		h(engine.Event{})
	}
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
	_, ok := m.images[id]
	return ok
}

func (m *Map) AddImage(id string, img image.Image, pixelRatio float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.AddImage++
	m.images[id] = Image{Image: img, PixelRatio: pixelRatio}
	return nil
}

func (m *Map) RemoveImage(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.RemoveImage++
	delete(m.images, id)
}

// Images returns a copy of the image table.
func (m *Map) Images() map[string]Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Image, len(m.images))
	for k, v := range m.images {
		out[k] = v
	}
	return out
}

func (m *Map) Source(id string) (engine.Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return nil, false
	}
	return s, true
}

func (m *Map) AddSource(id string, fc *geojson.FeatureCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.AddSource++
	m.sources[id] = &Source{m: m, data: fc}
	return nil
}

// Data returns the feature collection of a source, or nil.
func (m *Map) Data(sourceID string) *geojson.FeatureCollection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sources[sourceID]; ok {
		return s.data
	}
	return nil
}

func (m *Map) AddLayer(l engine.Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.AddLayer++
	m.layers = append(m.layers, l)
	return nil
}

func (m *Map) HasLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.layers {
		if l.ID == id {
			return true
		}
	}
	return false
}

// Layers returns the current layers.
func (m *Map) Layers() []engine.Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.Layer(nil), m.layers...)
}

func (m *Map) On(event, layerID string, h engine.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler{event: event, layer: layerID, fn: h})
}

// HandlerCount returns how many handlers are subscribed to event on layerID.
func (m *Map) HandlerCount(event, layerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.handlers {
		if h.event == event && h.layer == layerID {
			n++
		}
	}
	return n
}

// Fire delivers an event to the handlers subscribed on layerID.
func (m *Map) Fire(event, layerID string, ev engine.Event) {
	m.mu.Lock()
	var fns []engine.Handler
	for _, h := range m.handlers {
		if h.event == event && h.layer == layerID {
			fns = append(fns, h.fn)
		}
	}
	post := m.opts.Post
	m.mu.Unlock()

	for _, fn := range fns {
		fn := fn
		if post != nil {
			post(func() { fn(ev) })
			continue
		}
		fn(ev)
	}
}

func (m *Map) SetCursor(cursor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.SetCursor++
	m.cursor = cursor
}

// Cursor returns the current cursor.
func (m *Map) Cursor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Unproject maps a screen point one-to-one onto degrees, offset by the center.
func (m *Map) Unproject(p engine.ScreenPoint) model.LngLat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.LngLat{Lng: m.center.Lng + p.X, Lat: m.center.Lat - p.Y}
}

func (m *Map) Resize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Resize++
}

func (m *Map) NewPopup(opts engine.PopupOptions) engine.Popup {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &Popup{Options: opts}
	m.popups = append(m.popups, p)
	return p
}

// Popups returns every popup created on the map.
func (m *Map) Popups() []*Popup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Popup(nil), m.popups...)
}

func (m *Map) Remove() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = true
	m.handlers = nil
	for _, p := range m.popups {
		p.Remove()
	}
}

// Removed reports whether Remove was called.
func (m *Map) Removed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed
}

// Source is an in-memory GeoJSON source.
type Source struct {
	m    *Map
	data *geojson.FeatureCollection
}

func (s *Source) SetData(fc *geojson.FeatureCollection) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.calls.SetData++
	s.data = fc
	return nil
}

// Popup is an in-memory popup.
type Popup struct {
	Options engine.PopupOptions

	mu     sync.Mutex
	lngLat model.LngLat
	html   string
	open   bool
	enter  func()
	leave  func()
}

func (p *Popup) SetLngLat(ll model.LngLat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lngLat = ll
}

func (p *Popup) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

func (p *Popup) Show() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
}

func (p *Popup) Remove() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
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

// HTML returns the current content.
func (p *Popup) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html
}

// LngLat returns the current anchor.
func (p *Popup) LngLat() model.LngLat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lngLat
}

// PointerEnter simulates the pointer entering the popup element.
func (p *Popup) PointerEnter() {
	p.mu.Lock()
	fn := p.enter
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// PointerLeave simulates the pointer leaving the popup element.
func (p *Popup) PointerLeave() {
	p.mu.Lock()
	fn := p.leave
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
