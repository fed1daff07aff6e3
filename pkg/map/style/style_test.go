package style

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notemap/pkg/request"
	"notemap/pkg/tracker"
)

type fakeFetcher struct {
	bodies map[string]string
	calls  []string
}

func (f *fakeFetcher) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	f.calls = append(f.calls, u)
	b, ok := f.bodies[u]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return []byte(b), nil
}

func TestResolve_Selection(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{bodies: map[string]string{
		DefaultLightURL:                      `{"version":8,"name":"liberty"}`,
		DefaultDarkURL:                       `{"version":8,"name":"dark"}`,
		"https://styles.example/custom.json": `{"version":8,"name":"custom"}`,
	}}
	r := NewResolver(f, nil)

	tests := []struct {
		name     string
		light    []string
		dark     []string
		isDark   bool
		wantName string
		wantURL  string
		raster   int
	}{
		{name: "Default Light", wantName: "liberty"},
		{name: "Default Dark", isDark: true, wantName: "dark"},
		{name: "Blank Entries Ignored", light: []string{"  ", ""}, wantName: "liberty"},
		{name: "Custom Style Document", light: []string{"https://styles.example/custom.json"}, wantName: "custom"},
		{name: "Dark Falls Back To Light", light: []string{"https://styles.example/custom.json"}, isDark: true, wantName: "custom"},
		{name: "Fetch Failure Returns URL", light: []string{"https://down.example/style.json"}, wantURL: "https://down.example/style.json"},
		{name: "Single Template", light: []string{"https://tile.openstreetmap.org/{z}/{x}/{y}.png"}, raster: 1},
		{
			name:   "Dark List Used",
			light:  []string{"https://styles.example/custom.json"},
			dark:   []string{"https://dark.example/{z}/{x}/{y}.png", "https://labels.example/{z}/{x}/{y}.png"},
			isDark: true,
			raster: 2,
		},
		{name: "Multiple Non Templates", light: []string{"https://a.example/style.json", "https://b.example/style.json"}, raster: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := r.Resolve(ctx, tt.light, tt.dark, tt.isDark)
			switch {
			case tt.raster > 0:
				require.NotNil(t, s.Document)
				assert.Len(t, s.Document["sources"], tt.raster)
				assert.Len(t, s.Document["layers"], tt.raster)
			case tt.wantURL != "":
				assert.Nil(t, s.Document)
				assert.Equal(t, tt.wantURL, s.URL)
			default:
				require.NotNil(t, s.Document)
				assert.Equal(t, tt.wantName, s.Document["name"])
			}
		})
	}
}

func TestRasterStyle(t *testing.T) {
	doc := RasterStyle([]string{"https://a/{z}/{x}/{y}.png", "https://b/{z}/{x}/{y}.png"})

	assert.Equal(t, 8, doc["version"])
	sources := doc["sources"].(map[string]any)
	src := sources["custom-tiles-1"].(map[string]any)
	assert.Equal(t, "raster", src["type"])
	assert.Equal(t, []any{"https://b/{z}/{x}/{y}.png"}, src["tiles"])
	assert.Equal(t, 256, src["tileSize"])

	layers := doc["layers"].([]any)
	first := layers[0].(map[string]any)
	assert.Equal(t, "custom-layer-0", first["id"])
	assert.Equal(t, "custom-tiles-0", first["source"])
}

func TestIsTileTemplate(t *testing.T) {
	assert.True(t, IsTileTemplate("https://t/{z}/{x}/{y}.png"))
	assert.True(t, IsTileTemplate("https://t/tiles?x={x}"))
	assert.False(t, IsTileTemplate("https://t/style.json"))
}

func TestResolve_MapboxRewrite(t *testing.T) {
	const styleURL = "https://api.mapbox.com/styles/v1/me/abc?access_token=pk.123"
	f := &fakeFetcher{bodies: map[string]string{
		styleURL: `{
			"version": 8,
			"sprite": "mapbox://sprites/me/abc",
			"glyphs": "mapbox://fonts/me/{fontstack}/{range}.pbf",
			"sources": {
				"composite": {"type": "vector", "url": "mapbox://mapbox.mapbox-streets-v8,mapbox.mapbox-terrain-v2"},
				"plain": {"type": "raster", "tiles": ["https://tiles.example/{z}/{x}/{y}.png"]}
			}
		}`,
	}}

	s := NewResolver(f, nil).Resolve(context.Background(), []string{styleURL}, nil, false)
	require.NotNil(t, s.Document)

	assert.Equal(t, "https://api.mapbox.com/styles/v1/me/abc/sprite?access_token=pk.123", s.Document["sprite"])
	assert.Equal(t, "https://api.mapbox.com/fonts/v1/me/{fontstack}/{range}.pbf?access_token=pk.123", s.Document["glyphs"])

	sources := s.Document["sources"].(map[string]any)
	composite := sources["composite"].(map[string]any)
	assert.Equal(t, "https://api.mapbox.com/v4/mapbox.mapbox-streets-v8,mapbox.mapbox-terrain-v2.json?secure&access_token=pk.123", composite["url"])
	plain := sources["plain"].(map[string]any)
	assert.Equal(t, []any{"https://tiles.example/{z}/{x}/{y}.png"}, plain["tiles"])
}

func TestResolve_MapboxWithoutToken(t *testing.T) {
	const styleURL = "https://styles.example/mb.json"
	f := &fakeFetcher{bodies: map[string]string{
		styleURL: `{"version":8,"sprite":"mapbox://sprites/me/abc"}`,
	}}

	s := NewResolver(f, nil).Resolve(context.Background(), []string{styleURL}, nil, false)
	require.NotNil(t, s.Document)
	assert.Equal(t, "mapbox://sprites/me/abc", s.Document["sprite"], "no token, no rewrite")
}

func TestResolve_MapboxStyleURL(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{}}
	s := NewResolver(f, nil).Resolve(context.Background(), []string{"mapbox://styles/me/abc?access_token=pk.1"}, nil, false)

	require.Len(t, f.calls, 1)
	assert.Equal(t, "https://api.mapbox.com/styles/v1/me/abc?access_token=pk.1", f.calls[0])
	assert.Equal(t, f.calls[0], s.URL)
}

func TestResolve_ConfiguredAccessToken(t *testing.T) {
	const api = "https://api.mapbox.com/styles/v1/me/abc?access_token=pk.cfg"
	f := &fakeFetcher{bodies: map[string]string{
		api: `{"version":8,"sprite":"mapbox://sprites/me/abc"}`,
	}}
	r := NewResolver(f, nil)
	r.AccessToken = "pk.cfg"

	s := r.Resolve(context.Background(), []string{"mapbox://styles/me/abc"}, nil, false)
	require.Equal(t, []string{api}, f.calls)
	require.NotNil(t, s.Document)
	assert.Equal(t, "https://api.mapbox.com/styles/v1/me/abc/sprite?access_token=pk.cfg", s.Document["sprite"])

	// A token in the URL wins
	f.calls = nil
	r.Resolve(context.Background(), []string{"mapbox://styles/me/abc?access_token=pk.url"}, nil, false)
	assert.Equal(t, []string{"https://api.mapbox.com/styles/v1/me/abc?access_token=pk.url"}, f.calls)
}

func TestResolve_InvalidDocument(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a style</html>"))
	}))
	defer svr.Close()

	tr := tracker.New()
	r := NewResolver(request.New(nil, tr), tr)
	s := r.Resolve(context.Background(), []string{svr.URL + "/style.json"}, nil, false)

	assert.Equal(t, svr.URL+"/style.json", s.URL)
	var invalid int64
	for _, st := range tr.Snapshot() {
		invalid += st.APIInvalid
	}
	assert.Equal(t, int64(1), invalid)
}

func TestRedact(t *testing.T) {
	assert.NotContains(t, redact("https://api.mapbox.com/styles/v1/u/s?access_token=secret"), "secret")
}
