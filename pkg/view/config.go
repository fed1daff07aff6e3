package view

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"notemap/pkg/coords"
	"notemap/pkg/model"
)

// View option keys.
const (
	OptCoordinates = "coordinates"
	OptIcon        = "markerIcon"
	OptColor       = "markerColor"
	OptMarkup      = "markerSvg"
	OptMinZoom     = "minZoom"
	OptMaxZoom     = "maxZoom"
	OptDefaultZoom = "defaultZoom"
	OptCenter      = "center"
	OptHeight      = "mapHeight"
	OptLightTiles  = "mapTiles"
	OptDarkTiles   = "mapTilesDark"
	OptTileSet     = "tileSet"
)

// Defaults applied when an option is unset.
const (
	DefaultCoordinatesProp = "note.coordinates"
	DefaultMinZoom         = 0
	DefaultMaxZoom         = 18
	DefaultZoom            = 4
)

// BuildConfig resolves the view options into a DisplayConfig.
// The center option is evaluated as a formula first; on failure the raw value is used.
func BuildConfig(ctx context.Context, opts model.Options, ds model.Dataset, tileSets []model.TileSet, r coords.Resolver) *model.DisplayConfig {
	cfg := &model.DisplayConfig{
		CoordinatesProp:  optString(opts, OptCoordinates, DefaultCoordinatesProp),
		IconProp:         optString(opts, OptIcon, ""),
		ColorProp:        optString(opts, OptColor, ""),
		VectorMarkupProp: optString(opts, OptMarkup, ""),
	}

	// 1. Zoom range
	minZoom, _ := optFloat(opts, OptMinZoom)
	maxZoom, hasMax := optFloat(opts, OptMaxZoom)
	if !hasMax {
		maxZoom = DefaultMaxZoom
	}
	cfg.MinZoom = clamp(minZoom, model.MinZoomLevel, model.MaxZoomLevel)
	cfg.MaxZoom = clamp(maxZoom, cfg.MinZoom, model.MaxZoomLevel)

	zoom, ok := optFloat(opts, OptDefaultZoom)
	if !ok {
		zoom = DefaultZoom
	}
	cfg.ZoomConfigured = ok
	cfg.DefaultZoom = clamp(zoom, cfg.MinZoom, cfg.MaxZoom)

	// 2. Center
	if raw := opts.Get(OptCenter); !model.IsEmptyValue(raw) {
		v := raw
		if ds != nil {
			evaluated, err := ds.EvaluateCenter(ctx, raw)
			if err != nil {
				slog.Debug("View: Center formula failed, using raw value", "value", raw, "error", err)
			} else {
				v = evaluated
			}
		}
		if str, ok := v.(string); ok {
			v = strings.Trim(strings.TrimSpace(str), "[]")
		}
		if p, ok := r.Resolve(v); ok {
			cfg.Center = p
			cfg.CenterConfigured = true
		}
	}

	// 3. Layout
	cfg.EmbeddedHeight = optHeight(opts.Get(OptHeight))

	// 4. Tiles
	cfg.LightTileURLs = optList(opts.Get(OptLightTiles))
	cfg.DarkTileURLs = optList(opts.Get(OptDarkTiles))
	if len(cfg.LightTileURLs) == 0 && len(cfg.DarkTileURLs) == 0 {
		if ts := selectTileSet(tileSets, optString(opts, OptTileSet, "")); ts != nil {
			cfg.ActiveTileSetID = ts.ID
			cfg.LightTileURLs = nonEmpty(ts.LightTileURL)
			cfg.DarkTileURLs = nonEmpty(ts.DarkTileURL)
		}
	}

	return cfg
}

// selectTileSet returns the tile set with id, or the first one when id is empty or unknown.
func selectTileSet(sets []model.TileSet, id string) *model.TileSet {
	if len(sets) == 0 {
		return nil
	}
	for i := range sets {
		if sets[i].ID == id {
			return &sets[i]
		}
	}
	return &sets[0]
}

func nonEmpty(s string) []string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return []string{s}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func optString(opts model.Options, key, def string) string {
	if s := model.StringValue(opts.Get(key)); s != "" {
		return s
	}
	return def
}

func optFloat(opts model.Options, key string) (float64, bool) {
	switch v := opts.Get(key).(type) {
	case float64:
		return v, !math.IsNaN(v)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// optHeight accepts a pixel count as a number or as "400" / "400px".
func optHeight(v any) int {
	switch h := v.(type) {
	case float64:
		return max(0, int(h))
	case int:
		return max(0, h)
	case string:
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(h), "px"))
		if err != nil {
			return 0
		}
		return max(0, n)
	}
	return 0
}

// optList accepts a list or a newline separated string.
func optList(v any) []string {
	var raw []string
	switch l := v.(type) {
	case string:
		raw = strings.Split(l, "\n")
	case []string:
		raw = l
	case []any:
		for _, e := range l {
			raw = append(raw, model.StringValue(e))
		}
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Snapshot is the subset of DisplayConfig whose changes trigger expensive work.
type Snapshot struct {
	Center         [2]float64 `json:"center"`
	DefaultZoom    float64    `json:"defaultZoom"`
	MinZoom        float64    `json:"minZoom"`
	MaxZoom        float64    `json:"maxZoom"`
	EmbeddedHeight int        `json:"embeddedHeight"`
	LightTileURLs  []string   `json:"lightTileURLs"`
	DarkTileURLs   []string   `json:"darkTileURLs"`
}

// SnapshotOf captures cfg.
func SnapshotOf(cfg *model.DisplayConfig) Snapshot {
	return Snapshot{
		Center:         [2]float64{cfg.Center.Lat, cfg.Center.Lon},
		DefaultZoom:    cfg.DefaultZoom,
		MinZoom:        cfg.MinZoom,
		MaxZoom:        cfg.MaxZoom,
		EmbeddedHeight: cfg.EmbeddedHeight,
		LightTileURLs:  slices.Clone(cfg.LightTileURLs),
		DarkTileURLs:   slices.Clone(cfg.DarkTileURLs),
	}
}

// String returns the JSON form used in logs.
func (s Snapshot) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return err.Error()
	}
	return string(b)
}

// Diff lists which snapshot fields changed.
type Diff struct {
	Center    bool
	Zoom      bool
	ZoomRange bool
	Tiles     bool
	Height    bool
}

// Changed compares s against the previous snapshot.
func (s Snapshot) Changed(prev Snapshot) Diff {
	return Diff{
		Center:    s.Center != prev.Center,
		Zoom:      s.DefaultZoom != prev.DefaultZoom,
		ZoomRange: s.MinZoom != prev.MinZoom || s.MaxZoom != prev.MaxZoom,
		Tiles:     !slices.Equal(s.LightTileURLs, prev.LightTileURLs) || !slices.Equal(s.DarkTileURLs, prev.DarkTileURLs),
		Height:    s.EmbeddedHeight != prev.EmbeddedHeight,
	}
}

// Extract resolves the coordinates of each record, keeping record order.
// Records without usable coordinates are skipped.
func Extract(records []model.Record, cfg *model.DisplayConfig, r coords.Resolver) []model.MarkerRecord {
	if cfg.CoordinatesProp == "" {
		return nil
	}

	out := make([]model.MarkerRecord, 0, len(records))
	for _, rec := range records {
		v, err := rec.Property(cfg.CoordinatesProp)
		if err != nil {
			slog.Warn("View: Failed to read coordinates", "path", rec.Path(), "error", err)
			continue
		}
		if model.IsEmptyValue(v) {
			continue
		}
		p, ok := r.Resolve(v)
		if !ok {
			slog.Warn("View: Invalid coordinates", "path", rec.Path(), "value", v)
			continue
		}
		out = append(out, model.MarkerRecord{Record: rec, Coordinates: p})
	}
	return out
}
