package request

import "testing"

func TestProvider(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"api.mapbox.com", "mapbox"},
		{"a.tiles.mapbox.com", "mapbox"},
		{"tiles.openfreemap.org", "openfreemap"},
		{"tile.openstreetmap.org", "openstreetmap"},
		{"a.tile.openstreetmap.org", "openstreetmap"},
		{"api.maptiler.com", "maptiler"},
		{"a.basemaps.cartocdn.com", "carto"},
		{"localhost:8080", "localhost"},
		{"Other.com", "other.com"},
	}

	for _, tt := range tests {
		got := Provider(tt.host)
		if got != tt.expected {
			t.Errorf("Provider(%q) = %q; want %q", tt.host, got, tt.expected)
		}
	}
}
