// Package style turns configured tile and style URLs into a map style.
package style

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"notemap/pkg/engine"
	"notemap/pkg/request"
	"notemap/pkg/tracker"
)

// Built-in styles used when no URL is configured.
const (
	DefaultLightURL = "https://tiles.openfreemap.org/styles/liberty"
	DefaultDarkURL  = "https://tiles.openfreemap.org/styles/dark"
)

const (
	rasterTileSize = 256
	mapboxAPI      = "https://api.mapbox.com"
)

// Fetcher downloads a URL. A non-empty cacheKey allows cached responses.
type Fetcher interface {
	Get(ctx context.Context, u, cacheKey string) ([]byte, error)
}

// Resolver builds styles from tile URL lists.
type Resolver struct {
	fetch   Fetcher
	tracker *tracker.Tracker

	DefaultLight string
	DefaultDark  string
	// CacheDocuments lets style documents be served from the HTTP cache.
	CacheDocuments bool
	// AccessToken is used for mapbox:// URLs that carry no access_token.
	AccessToken string
}

// NewResolver creates a resolver. t may be nil.
func NewResolver(f Fetcher, t *tracker.Tracker) *Resolver {
	return &Resolver{
		fetch:        f,
		tracker:      t,
		DefaultLight: DefaultLightURL,
		DefaultDark:  DefaultDarkURL,
	}
}

// Resolve picks the URL list for the theme and returns a style.
// The dark list falls back to the light list when empty.
func (r *Resolver) Resolve(ctx context.Context, light, dark []string, isDark bool) engine.Style {
	urls := clean(light)
	if isDark {
		if d := clean(dark); len(d) > 0 {
			urls = d
		}
	}

	switch {
	case len(urls) == 0:
		def := r.DefaultLight
		if isDark {
			def = r.DefaultDark
		}
		return r.document(ctx, def)
	case len(urls) == 1 && !IsTileTemplate(urls[0]):
		return r.document(ctx, urls[0])
	}
	return engine.Style{Document: RasterStyle(urls)}
}

// IsTileTemplate reports whether u carries {z}/{x}/{y} placeholders.
func IsTileTemplate(u string) bool {
	return strings.Contains(u, "{z}") || strings.Contains(u, "{x}") || strings.Contains(u, "{y}")
}

// RasterStyle synthesizes a raster style with one source and layer per URL.
func RasterStyle(urls []string) map[string]any {
	sources := make(map[string]any, len(urls))
	layers := make([]any, 0, len(urls))
	for i, u := range urls {
		src := fmt.Sprintf("custom-tiles-%d", i)
		sources[src] = map[string]any{
			"type":     "raster",
			"tiles":    []any{u},
			"tileSize": rasterTileSize,
		}
		layers = append(layers, map[string]any{
			"id":     fmt.Sprintf("custom-layer-%d", i),
			"type":   "raster",
			"source": src,
		})
	}
	return map[string]any{
		"version": 8,
		"sources": sources,
		"layers":  layers,
	}
}

// document fetches a style document, degrading to the bare URL on failure.
func (r *Resolver) document(ctx context.Context, styleURL string) engine.Style {
	token := accessToken(styleURL)
	if token == "" {
		token = r.AccessToken
	}
	fetchURL := styleURL
	if strings.HasPrefix(styleURL, "mapbox://") && token != "" {
		fetchURL = rewriteMapboxURL(styleURL, token)
	}

	if r.fetch == nil {
		return engine.Style{URL: fetchURL}
	}

	cacheKey := ""
	if r.CacheDocuments {
		cacheKey = "style:" + fetchURL
	}
	body, err := r.fetch.Get(ctx, fetchURL, cacheKey)
	if err != nil {
		slog.Warn("Style: Fetch failed, using URL directly", "url", redact(fetchURL), "error", err)
		return engine.Style{URL: fetchURL}
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		slog.Warn("Style: Document is not a JSON object, using URL directly", "url", redact(fetchURL), "error", err)
		if r.tracker != nil {
			if u, perr := url.Parse(fetchURL); perr == nil {
				r.tracker.TrackAPIInvalid(request.Provider(u.Host))
			}
		}
		return engine.Style{URL: fetchURL}
	}

	if token != "" {
		RewriteMapbox(doc, token)
	} else if hasMapboxRefs(doc) {
		slog.Warn("Style: Document references mapbox:// resources but the URL has no access_token", "url", redact(fetchURL))
	}
	return engine.Style{Document: doc}
}

func clean(urls []string) []string {
	var out []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func accessToken(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("access_token")
}

// redact hides access tokens in logged URLs.
func redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := parsed.Query()
	if q.Has("access_token") {
		q.Set("access_token", "***")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

// RewriteMapbox replaces mapbox:// references in a style document with API URLs.
func RewriteMapbox(doc map[string]any, token string) {
	if s, ok := doc["sprite"].(string); ok {
		doc["sprite"] = rewriteMapboxURL(s, token)
	}
	if s, ok := doc["glyphs"].(string); ok {
		doc["glyphs"] = rewriteMapboxURL(s, token)
	}
	sources, _ := doc["sources"].(map[string]any)
	for _, raw := range sources {
		src, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := src["url"].(string); ok {
			src["url"] = rewriteMapboxURL(s, token)
		}
		if tiles, ok := src["tiles"].([]any); ok {
			for i, t := range tiles {
				if s, ok := t.(string); ok {
					tiles[i] = rewriteMapboxURL(s, token)
				}
			}
		}
	}
}

// rewriteMapboxURL maps one mapbox:// URL to its HTTPS API form; other URLs pass through.
func rewriteMapboxURL(u, token string) string {
	rest, ok := strings.CutPrefix(u, "mapbox://")
	if !ok {
		return u
	}
	rest, _, _ = strings.Cut(rest, "?")

	var out string
	switch {
	case strings.HasPrefix(rest, "styles/"):
		out = mapboxAPI + "/styles/v1/" + strings.TrimPrefix(rest, "styles/") + "?access_token=" + token
	case strings.HasPrefix(rest, "sprites/"):
		out = mapboxAPI + "/styles/v1/" + strings.TrimPrefix(rest, "sprites/") + "/sprite?access_token=" + token
	case strings.HasPrefix(rest, "fonts/"):
		out = mapboxAPI + "/fonts/v1/" + strings.TrimPrefix(rest, "fonts/") + "?access_token=" + token
	case strings.HasPrefix(rest, "tiles/"):
		out = mapboxAPI + "/v4/" + strings.TrimPrefix(rest, "tiles/") + "?access_token=" + token
	default:
		// Tileset ids, possibly comma separated
		out = mapboxAPI + "/v4/" + rest + ".json?secure&access_token=" + token
	}
	return out
}

func hasMapboxRefs(doc map[string]any) bool {
	b, err := json.Marshal(doc)
	if err != nil {
		return false
	}
	return strings.Contains(string(b), "mapbox://")
}
