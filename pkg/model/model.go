package model

import (
	"notemap/pkg/geo"
)

// Record is one geo-taggable entity supplied by the data layer.
// Records are read-only to the map view.
type Record interface {
	// Path is the stable identity of the record (e.g. "Places/Louvre.md").
	Path() string
	// Name is the human readable record name.
	Name() string
	// Property returns the value bound to a property id such as "note.location".
	// An error means the value could not be read and is treated as "no value".
	Property(id string) (any, error)
}

// MarkerRecord is a record whose coordinates resolved successfully.
type MarkerRecord struct {
	Record      Record
	Coordinates geo.Point
}

// LngLat is a coordinate in map-engine order.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Point converts to a geo.Point.
func (ll LngLat) Point() geo.Point {
	return geo.Point{Lat: ll.Lat, Lon: ll.Lng}
}

// LngLatOf converts a geo.Point to engine order.
func LngLatOf(p geo.Point) LngLat {
	return LngLat{Lng: p.Lon, Lat: p.Lat}
}

// CameraState is the ephemeral camera position preserved across a view teardown.
type CameraState struct {
	Center *LngLat  `json:"center,omitempty"`
	Zoom   *float64 `json:"zoom,omitempty"`
}

// IsZero reports whether neither center nor zoom was captured.
func (c CameraState) IsZero() bool {
	return c.Center == nil && c.Zoom == nil
}

// TileSet is a named background tile set defined in the host settings.
type TileSet struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LightTileURL string `json:"light_tile_url"`
	DarkTileURL  string `json:"dark_tile_url"`
}
