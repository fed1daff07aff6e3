// Package engine describes the map-rendering engine a view drives.
//
// The engine owns tile fetching, projection, camera math and hit-testing.
// Views talk to it through the addressable source/layer/image interfaces below.
package engine

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"notemap/pkg/model"
)

// Event names understood by Map.On.
const (
	EventMouseEnter  = "mouseenter"
	EventMouseLeave  = "mouseleave"
	EventClick       = "click"
	EventContextMenu = "contextmenu"
	EventStyleLoad   = "style.load"
)

// Cursor values accepted by Map.SetCursor.
const (
	CursorDefault = ""
	CursorPointer = "pointer"
)

// Style is either a style document URL or an inline style document.
type Style struct {
	URL      string         `json:"url,omitempty"`
	Document map[string]any `json:"document,omitempty"`
}

// IsZero reports whether no style is set.
func (s Style) IsZero() bool {
	return s.URL == "" && s.Document == nil
}

// ScreenPoint is a pixel position relative to the map container.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Modifiers are the keyboard modifiers held during a pointer event.
type Modifiers struct {
	Ctrl  bool `json:"ctrl"`
	Meta  bool `json:"meta"`
	Shift bool `json:"shift"`
	Alt   bool `json:"alt"`
}

// Event is a pointer event delivered by the engine.
// Features lists the rendered features under the pointer. Map-level events
// report features of every interactive layer.
type Event struct {
	Point     ScreenPoint        `json:"point"`
	LngLat    model.LngLat       `json:"lngLat"`
	Features  []*geojson.Feature `json:"features,omitempty"`
	Modifiers Modifiers          `json:"modifiers"`
}

// Handler receives engine events.
type Handler func(Event)

// Layer is a declarative layer definition in the engine's style language.
type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// ImageRegistry is the engine's named image table.
// It is cleared by the engine whenever the style is replaced.
type ImageRegistry interface {
	HasImage(id string) bool
	AddImage(id string, img image.Image, pixelRatio float64) error
	RemoveImage(id string)
}

// Source is an addressable GeoJSON source.
type Source interface {
	// SetData replaces the whole feature collection.
	SetData(fc *geojson.FeatureCollection) error
}

// PopupOptions configures a popup.
type PopupOptions struct {
	CloseButton  bool
	CloseOnClick bool
	Offset       float64
	MaxWidth     string
}

// Popup is a floating HTML panel anchored at a coordinate.
type Popup interface {
	SetLngLat(ll model.LngLat)
	SetHTML(html string)
	// Show attaches the popup to its map.
	Show()
	Remove()
	IsOpen() bool
	// OnPointer registers callbacks for the pointer entering or leaving the popup element.
	OnPointer(enter, leave func())
}

// Map is one rendered map instance.
type Map interface {
	ImageRegistry

	Center() model.LngLat
	SetCenter(ll model.LngLat)
	Zoom() float64
	SetZoom(z float64)
	SetMinZoom(z float64)
	SetMaxZoom(z float64)
	FitBounds(b orb.Bound, padding int, maxZoom float64)

	// SetStyle replaces the style; sources, layers and images are dropped.
	SetStyle(s Style)
	IsStyleLoaded() bool
	// OnceStyleLoad runs fn once the most recently set style has loaded.
	OnceStyleLoad(fn func())

	Source(id string) (Source, bool)
	AddSource(id string, fc *geojson.FeatureCollection) error
	AddLayer(l Layer) error
	HasLayer(id string) bool

	// On subscribes to an event. An empty layerID subscribes to the whole map.
	On(event, layerID string, h Handler)
	SetCursor(cursor string)
	Unproject(p ScreenPoint) model.LngLat
	Resize()
	NewPopup(opts PopupOptions) Popup
	// Remove tears the map down and releases its resources.
	Remove()
}

// Options are the construction parameters of a map.
type Options struct {
	Style   Style
	Center  model.LngLat
	Zoom    float64
	MinZoom float64
	MaxZoom float64
	// Post schedules event delivery on the owner's dispatch goroutine.
	// When nil, events are delivered on the engine's own goroutine.
	Post func(func())
}

// Factory creates maps.
type Factory func(opts Options) (Map, error)

// EncodePNGDataURI encodes img as a PNG data URI.
func EncodePNGDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
