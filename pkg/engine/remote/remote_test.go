package remote

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notemap/pkg/engine"
	"notemap/pkg/model"
)

// fakeConn replays scripted inbound frames and records outbound commands.
type fakeConn struct {
	mu      sync.Mutex
	written []map[string]any
	inbound chan string
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan string, 16)}
}

func (c *fakeConn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, m)
	return nil
}

func (c *fakeConn) ReadJSON(v any) error {
	s, ok := <-c.inbound
	if !ok {
		return errors.New("closed")
	}
	return json.Unmarshal([]byte(s), v)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *fakeConn) ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, w := range c.written {
		out = append(out, w["op"].(string))
	}
	return out
}

func TestMap_Commands(t *testing.T) {
	conn := newFakeConn()
	m, err := New(conn, engine.Options{Zoom: 4, MaxZoom: 18})
	require.NoError(t, err)

	m.SetCenter(model.LngLat{Lng: 2.35, Lat: 48.85})
	m.SetZoom(10)
	require.NoError(t, m.AddImage("dot-1", image.NewRGBA(image.Rect(0, 0, 4, 4)), 4))
	m.SetStyle(engine.Style{URL: "https://tiles.example/style.json"})

	assert.Equal(t, []string{"init", "setCenter", "setZoom", "addImage", "setStyle"}, conn.ops())
	assert.Equal(t, model.LngLat{Lng: 2.35, Lat: 48.85}, m.Center())
	assert.Equal(t, 10.0, m.Zoom())
	assert.False(t, m.HasImage("dot-1"), "style change clears the image mirror")
	assert.False(t, m.IsStyleLoaded())

	last := conn.written[3]["args"].(map[string]any)
	assert.Contains(t, last["url"], "data:image/png;base64,")
}

func TestMap_Serve(t *testing.T) {
	conn := newFakeConn()
	m, err := New(conn, engine.Options{})
	require.NoError(t, err)

	loaded := make(chan struct{})
	m.OnceStyleLoad(func() { close(loaded) })

	clicked := make(chan engine.Event, 1)
	m.On(engine.EventClick, "markers", func(ev engine.Event) { clicked <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	conn.inbound <- `{"type":"camera","center":{"lng":10,"lat":20},"zoom":5}`
	conn.inbound <- `{"type":"style.load"}`
	conn.inbound <- `{"type":"event","event":"click","layer":"markers","data":{"point":{"x":1,"y":2},"lngLat":{"lng":3,"lat":4},"modifiers":{"ctrl":true},"features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{"index":7}}]}}`

	<-loaded
	ev := <-clicked
	assert.True(t, ev.Modifiers.Ctrl)
	require.Len(t, ev.Features, 1)
	assert.Equal(t, 7.0, ev.Features[0].Properties["index"])

	assert.True(t, m.IsStyleLoaded())
	assert.Equal(t, model.LngLat{Lng: 10, Lat: 20}, m.Center())
	assert.Equal(t, 5.0, m.Zoom())

	cancel()
	<-done
}

func TestMap_SupersededStyleLoadIgnored(t *testing.T) {
	conn := newFakeConn()
	m, err := New(conn, engine.Options{})
	require.NoError(t, err)

	var mu sync.Mutex
	var fired []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			fired = append(fired, name)
		}
	}
	firedNow := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), fired...)
	}

	handled := make(chan string, 4)
	m.OnMessage(func(msgType string, _ json.RawMessage) { handled <- msgType })

	m.OnceStyleLoad(record("light"))
	m.SetStyle(engine.Style{URL: "https://tiles.example/light.json"})
	m.OnceStyleLoad(record("dark"))
	m.SetStyle(engine.Style{URL: "https://tiles.example/dark.json"})

	args := conn.written[len(conn.written)-1]["args"].(map[string]any)
	assert.Equal(t, 2.0, args["seq"])
	assert.Equal(t, "https://tiles.example/dark.json", args["style"].(map[string]any)["url"])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	// The light style finishes loading after dark was requested
	conn.inbound <- `{"type":"style.load","seq":1}`
	conn.inbound <- `{"type":"marker"}`
	assert.Equal(t, "marker", <-handled)
	assert.Empty(t, firedNow())
	assert.False(t, m.IsStyleLoaded())

	conn.inbound <- `{"type":"style.load","seq":2}`
	conn.inbound <- `{"type":"marker"}`
	assert.Equal(t, "marker", <-handled)
	assert.Equal(t, []string{"light", "dark"}, firedNow())
	assert.True(t, m.IsStyleLoaded())

	cancel()
	<-done
}

func TestMap_OnMessage(t *testing.T) {
	conn := newFakeConn()
	m, err := New(conn, engine.Options{})
	require.NoError(t, err)

	got := make(chan string, 1)
	m.OnMessage(func(msgType string, data json.RawMessage) {
		got <- msgType + " " + string(data)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Serve(ctx) }()

	conn.inbound <- `{"type":"menu","data":{"index":1}}`
	assert.Equal(t, `menu {"index":1}`, <-got)
}

func TestUnproject_Center(t *testing.T) {
	center := model.LngLat{Lng: 13.4, Lat: 52.5}
	got := unproject(engine.ScreenPoint{X: 400, Y: 300}, center, 10, 800, 600)
	assert.InDelta(t, center.Lng, got.Lng, 1e-9)
	assert.InDelta(t, center.Lat, got.Lat, 1e-9)

	east := unproject(engine.ScreenPoint{X: 800, Y: 300}, center, 10, 800, 600)
	assert.Greater(t, east.Lng, center.Lng)
}

func TestFitZoom(t *testing.T) {
	small := orb.Bound{Min: orb.Point{2.3, 48.8}, Max: orb.Point{2.4, 48.9}}
	large := orb.Bound{Min: orb.Point{-10, 35}, Max: orb.Point{30, 60}}

	zs := fitZoom(small, 800, 600, 0, 18)
	zl := fitZoom(large, 800, 600, 0, 18)
	assert.Greater(t, zs, zl)
	assert.LessOrEqual(t, zs, 18.0)

	point := orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 1}}
	assert.Equal(t, 14.0, fitZoom(point, 800, 600, 0, 14))
}
