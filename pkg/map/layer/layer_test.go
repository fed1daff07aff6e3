package layer

import (
	"errors"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notemap/pkg/engine"
	"notemap/pkg/engine/memengine"
	"notemap/pkg/geo"
	"notemap/pkg/map/markers"
	"notemap/pkg/model"
)

type shown struct {
	path  string
	at    geo.Point
	props []string
	note  string
}

type fakePopup struct {
	shows []shown
	hides int
}

func (p *fakePopup) Show(rec model.Record, at geo.Point, props []string, _ map[string]bool, note string) {
	p.shows = append(p.shows, shown{path: rec.Path(), at: at, props: props, note: note})
}

func (p *fakePopup) Hide() { p.hides++ }

type opened struct {
	path   string
	newTab bool
}

type fakeWorkspace struct {
	opened    []opened
	deleted   []string
	clipboard string
	menu      []model.MenuItem
	menuAt    [2]float64
	hovered   []string
	deleteErr error
}

func (w *fakeWorkspace) OpenRecord(path string, newTab bool) {
	w.opened = append(w.opened, opened{path, newTab})
}

func (w *fakeWorkspace) DeleteRecord(path string) error {
	w.deleted = append(w.deleted, path)
	return w.deleteErr
}

func (w *fakeWorkspace) CopyToClipboard(text string) { w.clipboard = text }

func (w *fakeWorkspace) ShowMenu(x, y float64, items []model.MenuItem) {
	w.menuAt = [2]float64{x, y}
	w.menu = items
}

func (w *fakeWorkspace) SetViewHeight(int) {}

func (w *fakeWorkspace) Hover(path string) { w.hovered = append(w.hovered, path) }

func marker(path string, lat, lon float64) model.MarkerRecord {
	return model.MarkerRecord{
		Record:      &model.MapRecord{RecordPath: path, RecordName: path},
		Coordinates: geo.Point{Lat: lat, Lon: lon},
	}
}

func describe(mk model.MarkerRecord) markers.Descriptor {
	d := markers.Descriptor{Key: "dot-" + mk.Record.Path(), Loaded: true}
	if mk.Record.Path() == "b.md" {
		d.FixedSize = true
		d.RenderError = "bad markup"
	}
	return d
}

func hit(i int) engine.Event {
	f := geojson.NewFeature(nil)
	f.Properties["index"] = float64(i)
	return engine.Event{Features: []*geojson.Feature{f}, Point: engine.ScreenPoint{X: 10, Y: 20}}
}

func setup(t *testing.T) (*memengine.Map, *Layer, *fakePopup, *fakeWorkspace) {
	t.Helper()
	m := memengine.New(engine.Options{})
	p := &fakePopup{}
	ws := &fakeWorkspace{}
	l := New(p, ws)
	err := l.Update(m, Input{
		Markers:    []model.MarkerRecord{marker("a.md", 10, 20), marker("b.md", -5, 30)},
		Describe:   describe,
		Properties: []string{"note.title"},
	})
	require.NoError(t, err)
	return m, l, p, ws
}

func TestUpdate_FirstCreatesSourceAndLayer(t *testing.T) {
	m, l, _, _ := setup(t)

	assert.Equal(t, Ready, l.State())
	assert.True(t, m.HasLayer(LayerID))
	assert.Equal(t, 1, m.Calls().AddSource)
	assert.Equal(t, 1, m.Calls().AddLayer)
	assert.Equal(t, 1, m.HandlerCount(engine.EventMouseEnter, LayerID))
	assert.Equal(t, 1, m.HandlerCount(engine.EventContextMenu, ""))

	fc := m.Data(SourceID)
	require.NotNil(t, fc)
	require.Len(t, fc.Features, 2)

	b := fc.Features[1]
	assert.Equal(t, 1, b.Properties["index"])
	assert.Equal(t, "dot-b.md", b.Properties["imageKey"])
	assert.Equal(t, true, b.Properties["fixedSize"])
	assert.Equal(t, "bad markup", b.Properties["renderError"])
	_, hasErr := fc.Features[0].Properties["renderError"]
	assert.False(t, hasErr)

	bounds := l.Bounds()
	assert.Equal(t, 2, bounds.Count())
	assert.Equal(t, -5.0, bounds.Bound().Min.Lat())
	assert.Equal(t, 30.0, bounds.Bound().Max.Lon())
}

func TestUpdate_ReadyIsSingleSetData(t *testing.T) {
	m, l, _, _ := setup(t)
	m.ResetCalls()

	require.NoError(t, l.Update(m, Input{Markers: []model.MarkerRecord{marker("c.md", 1, 1)}, Describe: describe}))

	calls := m.Calls()
	assert.Equal(t, 1, calls.SetData)
	assert.Zero(t, calls.AddSource)
	assert.Zero(t, calls.AddLayer)
	assert.Len(t, m.Data(SourceID).Features, 1)
	assert.Equal(t, 1, m.HandlerCount(engine.EventClick, LayerID), "handlers bound once")
}

func TestUpdate_AfterStyleChange(t *testing.T) {
	m, l, _, _ := setup(t)
	m.SetStyle(engine.Style{URL: "https://example.com/style.json"})
	l.Reset()
	assert.Equal(t, Uninitialized, l.State())

	require.NoError(t, l.Update(m, Input{Markers: []model.MarkerRecord{marker("a.md", 1, 1)}, Describe: describe}))

	assert.Equal(t, Ready, l.State())
	assert.True(t, m.HasLayer(LayerID))
	assert.Equal(t, 1, m.HandlerCount(engine.EventMouseLeave, LayerID))
}

func TestUpdate_RecoversMissingSource(t *testing.T) {
	m, l, _, _ := setup(t)
	m.SetStyle(engine.Style{URL: "https://example.com/style.json"})

	require.NoError(t, l.Update(m, Input{Describe: describe}))
	assert.Equal(t, Ready, l.State())
	assert.NotNil(t, m.Data(SourceID))
}

func TestDefinition_IconSize(t *testing.T) {
	def := Definition()
	size, ok := def.Layout["icon-size"].([]any)
	require.True(t, ok)
	require.Len(t, size, 3+2*len(sizeStops))
	assert.Equal(t, "interpolate", size[0])

	for i, s := range sizeStops {
		assert.Equal(t, s.Zoom, size[3+2*i])
		c := size[4+2*i].([]any)
		assert.Equal(t, "case", c[0])
		assert.Equal(t, FixedIconSize, c[2])
		assert.Equal(t, s.Size, c[3])
	}
	assert.Equal(t, []any{"get", "imageKey"}, def.Layout["icon-image"])
}

func TestHover(t *testing.T) {
	m, _, p, ws := setup(t)

	m.Fire(engine.EventMouseEnter, LayerID, hit(1))
	assert.Equal(t, engine.CursorPointer, m.Cursor())
	require.Len(t, p.shows, 1)
	assert.Equal(t, "b.md", p.shows[0].path)
	assert.Equal(t, geo.Point{Lat: -5, Lon: 30}, p.shows[0].at)
	assert.Equal(t, "bad markup", p.shows[0].note)
	assert.Equal(t, []string{"note.title"}, p.shows[0].props)
	assert.Equal(t, []string{"b.md"}, ws.hovered)

	m.Fire(engine.EventMouseLeave, LayerID, engine.Event{})
	assert.Equal(t, engine.CursorDefault, m.Cursor())
	assert.Equal(t, 1, p.hides)
}

func TestHover_StaleIndexIgnored(t *testing.T) {
	m, _, p, _ := setup(t)
	m.Fire(engine.EventMouseEnter, LayerID, hit(7))
	assert.Empty(t, p.shows)
	assert.Equal(t, engine.CursorDefault, m.Cursor())
}

func TestClick(t *testing.T) {
	m, _, _, ws := setup(t)

	m.Fire(engine.EventClick, LayerID, hit(0))
	ev := hit(1)
	ev.Modifiers.Meta = true
	m.Fire(engine.EventClick, LayerID, ev)
	ev = hit(1)
	ev.Modifiers.Ctrl = true
	m.Fire(engine.EventClick, LayerID, ev)

	assert.Equal(t, []opened{{"a.md", false}, {"b.md", true}, {"b.md", true}}, ws.opened)
}

func TestContextMenu_Marker(t *testing.T) {
	m, _, _, ws := setup(t)
	m.Fire(engine.EventContextMenu, LayerID, hit(0))

	require.Len(t, ws.menu, 3)
	assert.Equal(t, [2]float64{10, 20}, ws.menuAt)

	ws.menu[0].Action()
	assert.Equal(t, "10, 20", ws.clipboard)

	ws.menu[1].Action()
	assert.Equal(t, []opened{{"a.md", true}}, ws.opened)

	ws.deleteErr = errors.New("read-only")
	ws.menu[2].Action()
	assert.Equal(t, []string{"a.md"}, ws.deleted)
}

func TestContextMenu_Background(t *testing.T) {
	m, _, _, ws := setup(t)

	m.Fire(engine.EventContextMenu, "", engine.Event{LngLat: model.LngLat{Lng: 2.5, Lat: 48.25}})
	require.Len(t, ws.menu, 1)
	ws.menu[0].Action()
	assert.Equal(t, "48.25, 2.5", ws.clipboard)

	ws.menu = nil
	m.Fire(engine.EventContextMenu, "", hit(0))
	assert.Nil(t, ws.menu, "marker hits are handled by the layer menu")
}

func TestFeatureIndex(t *testing.T) {
	_, ok := featureIndex(nil)
	assert.False(t, ok)

	f := geojson.NewFeature(nil)
	_, ok = featureIndex(f)
	assert.False(t, ok)

	f.Properties["index"] = int64(3)
	i, ok := featureIndex(f)
	assert.True(t, ok)
	assert.Equal(t, 3, i)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "uninitialized", Uninitialized.String())
}
