package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// IsZero reports whether the point is (0,0), which map options treat as "unset".
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// Orb returns the point in orb's (lng, lat) order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// String formats the point as "lat, lon", the form users paste into note properties.
func (p Point) String() string {
	return fmt.Sprintf("%s, %s", trimFloat(p.Lat), trimFloat(p.Lon))
}

// FromOrb converts an orb point (lng, lat) into a Point.
func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lon: p.Lon()}
}

// Valid reports whether the point lies within the WGS84 lat/lon ranges.
func Valid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Near reports whether both axes of a and b differ by no more than tolerance degrees.
func Near(a, b Point, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lon-b.Lon) <= tolerance
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
