// Package layer maintains the marker source, the symbol layer and the pointer
// interactions bound to it.
package layer

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"notemap/pkg/engine"
	"notemap/pkg/geo"
	"notemap/pkg/map/markers"
	"notemap/pkg/model"
)

const (
	SourceID = "notemap-markers"
	LayerID  = "notemap-markers-layer"

	// FixedIconSize is the icon-size used for markers with an explicit pixel size.
	FixedIconSize = 0.5
)

// State tracks whether the source and layer exist in the current style.
type State int

const (
	Uninitialized State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "uninitialized"
}

// sizeStops is the icon-size zoom curve for markers without a fixed size.
var sizeStops = []struct {
	Zoom, Size float64
}{
	{0, 0.5},
	{6, 0.6},
	{12, 0.8},
	{18, 1.0},
}

// Popup is the subset of the popup coordinator the layer drives.
type Popup interface {
	Show(rec model.Record, at geo.Point, props []string, roles map[string]bool, note string)
	Hide()
}

// Input is one dataset snapshot pushed to the layer.
type Input struct {
	Markers  []model.MarkerRecord
	Describe func(model.MarkerRecord) markers.Descriptor
	// Properties are the displayable property ids; Roles are hidden from popups.
	Properties []string
	Roles      map[string]bool
}

// Layer owns the marker source of one map view.
// All methods must run on the view's dispatch goroutine.
type Layer struct {
	popup Popup
	ws    model.Workspace

	state State
	bound engine.Map

	markers []model.MarkerRecord
	notes   []string
	bounds  geo.Bounds
	props   []string
	roles   map[string]bool
}

// New creates a layer in the Uninitialized state.
func New(p Popup, ws model.Workspace) *Layer {
	return &Layer{popup: p, ws: ws}
}

func (l *Layer) State() State { return l.state }

// Markers returns the markers of the last update in display order.
func (l *Layer) Markers() []model.MarkerRecord { return l.markers }

// Bounds returns the bounding box of the last update.
func (l *Layer) Bounds() geo.Bounds { return l.bounds }

// Reset marks the source as gone, e.g. after the style was replaced.
func (l *Layer) Reset() {
	l.state = Uninitialized
}

// Update pushes a snapshot. In the Ready state this is a single SetData call;
// otherwise the source and layer are created first.
func (l *Layer) Update(m engine.Map, in Input) error {
	fc, notes, bounds := build(in)

	if l.state == Ready && l.bound == m {
		if src, ok := m.Source(SourceID); ok {
			if err := src.SetData(fc); err != nil {
				return fmt.Errorf("failed to update marker source: %w", err)
			}
			l.commit(in, notes, bounds)
			return nil
		}
		slog.Debug("Layer: Source missing, recreating")
		l.state = Uninitialized
	}

	if err := m.AddSource(SourceID, fc); err != nil {
		return fmt.Errorf("failed to add marker source: %w", err)
	}
	if !m.HasLayer(LayerID) {
		if err := m.AddLayer(Definition()); err != nil {
			return fmt.Errorf("failed to add marker layer: %w", err)
		}
	}
	if l.bound != m {
		l.bind(m)
	}

	l.state = Ready
	l.commit(in, notes, bounds)
	slog.Debug("Layer: Initialized", "markers", len(in.Markers))
	return nil
}

func (l *Layer) commit(in Input, notes []string, bounds geo.Bounds) {
	l.markers = in.Markers
	l.notes = notes
	l.bounds = bounds
	l.props = in.Properties
	l.roles = in.Roles
}

func build(in Input) (*geojson.FeatureCollection, []string, geo.Bounds) {
	fc := geojson.NewFeatureCollection()
	notes := make([]string, len(in.Markers))
	var bounds geo.Bounds

	for i, mk := range in.Markers {
		var d markers.Descriptor
		if in.Describe != nil {
			d = in.Describe(mk)
		}
		f := geojson.NewFeature(mk.Coordinates.Orb())
		f.Properties["index"] = i
		f.Properties["path"] = mk.Record.Path()
		f.Properties["imageKey"] = d.Key
		f.Properties["fixedSize"] = d.FixedSize
		if d.RenderError != "" {
			f.Properties["renderError"] = d.RenderError
		}
		fc.Append(f)

		notes[i] = d.RenderError
		bounds.Extend(mk.Coordinates)
	}
	return fc, notes, bounds
}

// Definition returns the symbol layer. Fixed-size markers keep FixedIconSize at every zoom.
func Definition() engine.Layer {
	size := []any{"interpolate", []any{"linear"}, []any{"zoom"}}
	for _, s := range sizeStops {
		size = append(size, s.Zoom, []any{"case", []any{"get", "fixedSize"}, FixedIconSize, s.Size})
	}

	return engine.Layer{
		ID:     LayerID,
		Type:   "symbol",
		Source: SourceID,
		Layout: map[string]any{
			"icon-image":            []any{"get", "imageKey"},
			"icon-size":             size,
			"icon-allow-overlap":    true,
			"icon-ignore-placement": true,
		},
	}
}

// bind subscribes the interaction handlers. Engine subscriptions outlive style
// changes, so this runs once per map.
func (l *Layer) bind(m engine.Map) {
	l.bound = m

	m.On(engine.EventMouseEnter, LayerID, func(ev engine.Event) {
		mk, i, ok := l.target(ev)
		if !ok {
			return
		}
		m.SetCursor(engine.CursorPointer)
		if l.popup != nil {
			l.popup.Show(mk.Record, mk.Coordinates, l.props, l.roles, l.notes[i])
		}
		if l.ws != nil {
			l.ws.Hover(mk.Record.Path())
		}
	})

	m.On(engine.EventMouseLeave, LayerID, func(engine.Event) {
		m.SetCursor(engine.CursorDefault)
		if l.popup != nil {
			l.popup.Hide()
		}
	})

	m.On(engine.EventClick, LayerID, func(ev engine.Event) {
		mk, _, ok := l.target(ev)
		if !ok || l.ws == nil {
			return
		}
		l.ws.OpenRecord(mk.Record.Path(), ev.Modifiers.Ctrl || ev.Modifiers.Meta)
	})

	m.On(engine.EventContextMenu, LayerID, func(ev engine.Event) {
		mk, _, ok := l.target(ev)
		if !ok || l.ws == nil {
			return
		}
		l.ws.ShowMenu(ev.Point.X, ev.Point.Y, l.markerMenu(mk))
	})

	m.On(engine.EventContextMenu, "", func(ev engine.Event) {
		if l.ws == nil || l.hitsMarker(ev) {
			return
		}
		ll := ev.LngLat
		if ll == (model.LngLat{}) {
			ll = m.Unproject(ev.Point)
		}
		p := ll.Point()
		ws := l.ws
		ws.ShowMenu(ev.Point.X, ev.Point.Y, []model.MenuItem{
			{Title: "Copy coordinates", Icon: "copy", Action: func() { ws.CopyToClipboard(p.String()) }},
		})
	})
}

func (l *Layer) markerMenu(mk model.MarkerRecord) []model.MenuItem {
	ws := l.ws
	path := mk.Record.Path()
	coords := mk.Coordinates.String()
	return []model.MenuItem{
		{Title: "Copy coordinates", Icon: "copy", Action: func() { ws.CopyToClipboard(coords) }},
		{Title: "Open in new tab", Icon: "external-link", Action: func() { ws.OpenRecord(path, true) }},
		{Title: "Delete", Icon: "trash", Action: func() {
			if err := ws.DeleteRecord(path); err != nil {
				slog.Error("Layer: Failed to delete record", "path", path, "error", err)
			}
		}},
	}
}

// target resolves the top feature of ev to a marker of the current snapshot.
func (l *Layer) target(ev engine.Event) (model.MarkerRecord, int, bool) {
	for _, f := range ev.Features {
		i, ok := featureIndex(f)
		if !ok || i < 0 || i >= len(l.markers) {
			continue
		}
		return l.markers[i], i, true
	}
	return model.MarkerRecord{}, 0, false
}

func (l *Layer) hitsMarker(ev engine.Event) bool {
	_, _, ok := l.target(ev)
	return ok
}

func featureIndex(f *geojson.Feature) (int, bool) {
	if f == nil {
		return 0, false
	}
	switch v := f.Properties["index"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case int64:
		return int(v), true
	}
	return 0, false
}
