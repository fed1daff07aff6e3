package memengine

import (
	"image"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notemap/pkg/engine"
	"notemap/pkg/model"
)

func TestMap_SetStyleDropsState(t *testing.T) {
	m := New(engine.Options{Style: engine.Style{URL: "https://example.com/style.json"}})

	require.NoError(t, m.AddImage("a", image.NewRGBA(image.Rect(0, 0, 2, 2)), 2))
	require.NoError(t, m.AddSource("markers", geojson.NewFeatureCollection()))
	require.NoError(t, m.AddLayer(engine.Layer{ID: "markers", Type: "symbol", Source: "markers"}))

	loaded := 0
	m.OnceStyleLoad(func() { loaded++ })
	m.SetStyle(engine.Style{URL: "https://example.com/dark.json"})

	assert.Equal(t, 1, loaded)
	assert.True(t, m.IsStyleLoaded())
	assert.False(t, m.HasImage("a"))
	assert.False(t, m.HasLayer("markers"))
	_, ok := m.Source("markers")
	assert.False(t, ok)

	m.SetStyle(engine.Style{URL: "https://example.com/light.json"})
	assert.Equal(t, 1, loaded, "once callbacks fire once")
}

func TestMap_ManualStyleLoad(t *testing.T) {
	m := New(engine.Options{})
	m.AutoLoadStyle = false

	loaded := false
	m.OnceStyleLoad(func() { loaded = true })
	m.SetStyle(engine.Style{URL: "x"})
	assert.False(t, m.IsStyleLoaded())
	assert.False(t, loaded)

	m.CompleteStyleLoad()
	assert.True(t, loaded)
}

func TestMap_FireUsesPost(t *testing.T) {
	var queued []func()
	m := New(engine.Options{Post: func(fn func()) { queued = append(queued, fn) }})

	var got engine.Event
	m.On(engine.EventClick, "markers", func(ev engine.Event) { got = ev })
	m.Fire(engine.EventClick, "markers", engine.Event{LngLat: model.LngLat{Lng: 1, Lat: 2}})

	require.Len(t, queued, 1)
	assert.Equal(t, 0.0, got.LngLat.Lng)
	queued[0]()
	assert.Equal(t, 1.0, got.LngLat.Lng)
}

func TestMap_FitBounds(t *testing.T) {
	m := New(engine.Options{Zoom: 12})
	m.FitBounds(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 20}}, 50, 9)

	assert.Equal(t, model.LngLat{Lng: 5, Lat: 10}, m.Center())
	assert.Equal(t, 9.0, m.Zoom())
	assert.Equal(t, 1, m.Calls().FitBounds)
}

func TestPopup_Pointer(t *testing.T) {
	m := New(engine.Options{})
	p := m.NewPopup(engine.PopupOptions{}).(*Popup)

	entered, left := 0, 0
	p.OnPointer(func() { entered++ }, func() { left++ })
	p.Show()
	p.PointerEnter()
	p.PointerLeave()

	assert.True(t, p.IsOpen())
	assert.Equal(t, 1, entered)
	assert.Equal(t, 1, left)

	m.Remove()
	assert.False(t, p.IsOpen())
}
