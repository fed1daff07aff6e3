// Package coords turns property values into validated coordinates.
package coords

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"notemap/pkg/geo"
)

// Resolver parses coordinate values.
//
// With AllowZero unset, a latitude or longitude of exactly 0 is rejected.
// Stored notes written by earlier versions rely on that behavior, so it is the default;
// AllowZero enables equatorial and prime-meridian points.
type Resolver struct {
	AllowZero bool
}

// Default is the resolver used when no configuration is given.
var Default = Resolver{}

// Resolve parses v with the default resolver.
func Resolve(v any) (geo.Point, bool) {
	return Default.Resolve(v)
}

// Resolve accepts a list of at least two elements (lat, lng) or a "lat, lng" string.
func (r Resolver) Resolve(v any) (geo.Point, bool) {
	var latRaw, lonRaw any

	switch val := v.(type) {
	case nil:
		return geo.Point{}, false
	case string:
		parts := strings.Split(val, ",")
		if len(parts) < 2 {
			return geo.Point{}, false
		}
		latRaw, lonRaw = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	case []any:
		if len(val) < 2 {
			return geo.Point{}, false
		}
		latRaw, lonRaw = val[0], val[1]
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return geo.Point{}, false
		}
		if rv.Len() < 2 {
			return geo.Point{}, false
		}
		latRaw, lonRaw = rv.Index(0).Interface(), rv.Index(1).Interface()
	}

	lat, ok := r.parse(latRaw)
	if !ok {
		return geo.Point{}, false
	}
	lon, ok := r.parse(lonRaw)
	if !ok {
		return geo.Point{}, false
	}
	if !geo.Valid(lat, lon) {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lon: lon}, true
}

func (r Resolver) parse(v any) (float64, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	if f == 0 && !r.AllowZero {
		return 0, false
	}
	return f, true
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		return parseLeadingFloat(val)
	}
	return 0, false
}

var leadingFloat = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

// parseLeadingFloat parses the numeric prefix of s, so "48.85°" reads as 48.85.
func parseLeadingFloat(s string) (float64, bool) {
	m := leadingFloat.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
