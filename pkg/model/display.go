package model

import "notemap/pkg/geo"

// Zoom limits accepted by the map engine.
const (
	MinZoomLevel = 0
	MaxZoomLevel = 24
)

// DisplayConfig is the fully resolved configuration of one map view.
// It is rebuilt from the view options on every dataset update and never mutated afterwards.
type DisplayConfig struct {
	CoordinatesProp  string
	IconProp         string
	ColorProp        string
	VectorMarkupProp string

	MinZoom        float64
	MaxZoom        float64
	DefaultZoom    float64
	ZoomConfigured bool

	// Center is (0,0) when unset; the view then derives placement from the data.
	Center           geo.Point
	CenterConfigured bool

	EmbeddedHeight int

	LightTileURLs   []string
	DarkTileURLs    []string
	ActiveTileSetID string
}

// Roles returns the property ids that drive marker rendering and are hidden from popups.
func (c *DisplayConfig) Roles() map[string]bool {
	roles := make(map[string]bool, 4)
	for _, p := range []string{c.CoordinatesProp, c.IconProp, c.ColorProp, c.VectorMarkupProp} {
		if p != "" {
			roles[p] = true
		}
	}
	return roles
}
