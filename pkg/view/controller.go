// Package view orchestrates one map view: configuration diffing, camera policy,
// style rebuilds and marker refreshes.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"notemap/pkg/coords"
	"notemap/pkg/engine"
	"notemap/pkg/geo"
	"notemap/pkg/map/layer"
	"notemap/pkg/map/markers"
	"notemap/pkg/map/popup"
	"notemap/pkg/model"
)

const (
	// CenterTolerance is the per-axis distance in degrees below which a center is unchanged.
	CenterTolerance = 1e-5
	// FitPadding is the pixel padding used when fitting the camera to the data.
	FitPadding = 50
	// fitMaxZoom caps the zoom of an automatic fit when no zoom is configured.
	fitMaxZoom = 15
)

// StyleResolver turns tile URL lists into a map style.
type StyleResolver interface {
	Resolve(ctx context.Context, light, dark []string, isDark bool) engine.Style
}

// TileSetLister lists the configured background tile sets in priority order.
type TileSetLister interface {
	ListTileSets(ctx context.Context) ([]model.TileSet, error)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Dataset   model.Dataset
	Options   model.Options
	Workspace model.Workspace
	Engine    engine.Factory
	Styles    StyleResolver
	// TileSets and Images are optional.
	TileSets TileSetLister
	Images   *markers.Cache
	Coords   coords.Resolver
	Theme    markers.Theme
}

// Controller drives one map view. Its exported methods are safe for concurrent
// use; the work itself runs serially on the view's dispatcher.
type Controller struct {
	deps   Deps
	disp   *Dispatcher
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the dispatch goroutine.
	m       engine.Map
	layer   *layer.Layer
	popup   *popup.Coordinator
	images  *markers.Cache
	theme   markers.Theme
	cfg     *model.DisplayConfig
	prev    *Snapshot
	markers []model.MarkerRecord
	props   []string

	restore      *model.CameraState
	needsPlace   bool
	styleGen     int
	styleLoading bool
	closed       bool
}

// New creates a controller. The map is created by the first OnDataUpdated.
func New(deps Deps) (*Controller, error) {
	if deps.Dataset == nil || deps.Options == nil || deps.Engine == nil || deps.Styles == nil {
		return nil, errors.New("view: dataset, options, engine and styles are required")
	}
	images := deps.Images
	if images == nil {
		images = markers.NewCache(0)
	}

	theme := deps.Theme
	if theme.Vars == nil {
		theme = markers.LightTheme()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:   deps,
		disp:   NewDispatcher(),
		ctx:    ctx,
		cancel: cancel,
		images: images,
		theme:  theme,
	}, nil
}

// Post schedules fn on the view's dispatcher.
func (c *Controller) Post(fn func()) bool {
	return c.disp.Post(fn)
}

// OnDataUpdated rebuilds the configuration and reconciles the map with the dataset.
func (c *Controller) OnDataUpdated(ctx context.Context) error {
	return c.disp.Do(ctx, func() error { return c.update(ctx) })
}

// OnResize tells the engine its container changed size.
func (c *Controller) OnResize(ctx context.Context) error {
	return c.disp.Do(ctx, func() error {
		if c.m != nil {
			c.m.Resize()
		}
		return nil
	})
}

// OnThemeChange switches the palette, reloads the style and rebuilds every marker image.
func (c *Controller) OnThemeChange(ctx context.Context, th markers.Theme) error {
	return c.disp.Do(ctx, func() error {
		if c.theme.Dark == th.Dark && equalVars(c.theme, th) {
			return nil
		}
		c.theme = th
		if c.m == nil || c.cfg == nil {
			return nil
		}
		slog.Debug("View: Theme changed", "dark", th.Dark)
		c.rebuildStyle(ctx)
		return nil
	})
}

func equalVars(a, b markers.Theme) bool {
	if len(a.Vars) != len(b.Vars) || a.MarkerColor != b.MarkerColor || a.IconColor != b.IconColor {
		return false
	}
	for k, v := range a.Vars {
		if b.Vars[k] != v {
			return false
		}
	}
	return true
}

// State captures the current camera.
func (c *Controller) State(ctx context.Context) (model.CameraState, error) {
	var cs model.CameraState
	err := c.disp.Do(ctx, func() error {
		if c.m == nil {
			if c.restore != nil {
				cs = *c.restore
			}
			return nil
		}
		center := c.m.Center()
		zoom := c.m.Zoom()
		cs = model.CameraState{Center: &center, Zoom: &zoom}
		return nil
	})
	return cs, err
}

// SetState queues a camera position to restore on the next placement.
func (c *Controller) SetState(ctx context.Context, cs model.CameraState) error {
	if cs.IsZero() {
		return nil
	}
	return c.disp.Do(ctx, func() error {
		c.restore = &cs
		return nil
	})
}

// Close releases the popup, the map and the dispatcher.
func (c *Controller) Close() {
	c.cancel()
	_ = c.disp.Do(context.Background(), func() error {
		c.closed = true
		if c.popup != nil {
			c.popup.Close()
		}
		if c.m != nil {
			c.m.Remove()
		}
		return nil
	})
	c.disp.Close()
}

func (c *Controller) update(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}

	// 1. Configuration
	cfg := BuildConfig(ctx, c.deps.Options, c.deps.Dataset, c.tileSets(ctx), c.deps.Coords)
	snap := SnapshotOf(cfg)
	first := c.m == nil
	var diff Diff
	if c.prev != nil {
		diff = snap.Changed(*c.prev)
	}
	c.cfg = cfg
	c.prev = &snap

	// 2. Records
	records, props, err := c.deps.Dataset.Records(ctx)
	if err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}
	c.markers = Extract(records, cfg, c.deps.Coords)
	c.props = props
	slog.Debug("View: Data updated", "records", len(records), "markers", len(c.markers), "snapshot", snap.String())

	// 3. Map
	if first {
		if err := c.createMap(cfg); err != nil {
			return err
		}
		c.needsPlace = true
	}

	// 4. Camera
	c.applyCamera(cfg, diff, first)

	// 5. Layout
	if first || diff.Height {
		if c.deps.Workspace != nil && cfg.EmbeddedHeight > 0 {
			c.deps.Workspace.SetViewHeight(cfg.EmbeddedHeight)
		}
		c.m.Resize()
	}

	// 6. Style and markers
	if first || diff.Tiles {
		c.rebuildStyle(ctx)
		return nil
	}
	if c.styleLoading {
		return nil
	}
	return c.renderMarkers(ctx)
}

func (c *Controller) createMap(cfg *model.DisplayConfig) error {
	opts := engine.Options{
		Center:  model.LngLatOf(cfg.Center),
		Zoom:    cfg.DefaultZoom,
		MinZoom: cfg.MinZoom,
		MaxZoom: cfg.MaxZoom,
		Post:    func(fn func()) { c.disp.Post(fn) },
	}
	m, err := c.deps.Engine(opts)
	if err != nil {
		return fmt.Errorf("failed to create map: %w", err)
	}

	c.m = m
	c.popup = popup.New(m, c.deps.Options.DisplayName, opts.Post)
	c.layer = layer.New(c.popup, c.deps.Workspace)
	return nil
}

// applyCamera implements the camera policy. A pending restore wins over both the
// configured and the data-derived placement, exactly once.
func (c *Controller) applyCamera(cfg *model.DisplayConfig, diff Diff, first bool) {
	if !first && diff.ZoomRange {
		c.m.SetMinZoom(cfg.MinZoom)
		c.m.SetMaxZoom(cfg.MaxZoom)
	}
	if diff.Center && !cfg.CenterConfigured {
		c.needsPlace = true
	}

	if c.restore != nil {
		rs := c.restore
		c.restore = nil
		c.needsPlace = false
		if rs.Zoom != nil {
			c.m.SetZoom(*rs.Zoom)
		}
		if rs.Center != nil {
			c.m.SetCenter(*rs.Center)
		}
		slog.Debug("View: Restored camera")
		return
	}

	zoomApplied := false
	if cfg.ZoomConfigured && (first || diff.Zoom) {
		c.m.SetZoom(cfg.DefaultZoom)
		zoomApplied = true
	}

	if cfg.CenterConfigured {
		if first || (diff.Center && !geo.Near(c.m.Center().Point(), cfg.Center, CenterTolerance)) {
			c.m.SetCenter(model.LngLatOf(cfg.Center))
		}
		c.needsPlace = false
		return
	}

	if c.needsPlace && len(c.markers) > 0 {
		c.placeOnData(cfg, zoomApplied)
		c.needsPlace = false
	}
}

// placeOnData centers on a single location or fits the camera to all markers.
func (c *Controller) placeOnData(cfg *model.DisplayConfig, zoomApplied bool) {
	var b geo.Bounds
	for _, mk := range c.markers {
		b.Extend(mk.Coordinates)
	}

	if b.IsPoint() {
		c.m.SetCenter(model.LngLatOf(b.Center()))
		if !zoomApplied {
			c.m.SetZoom(cfg.DefaultZoom)
		}
		return
	}

	maxZoom := math.Min(cfg.MaxZoom, fitMaxZoom)
	if cfg.ZoomConfigured {
		maxZoom = cfg.DefaultZoom
	}
	c.m.FitBounds(b.Bound(), FitPadding, maxZoom)
}

// rebuildStyle replaces the style. The engine drops images, sources and layers,
// so markers are rebuilt once the new style has loaded.
func (c *Controller) rebuildStyle(ctx context.Context) {
	style := c.deps.Styles.Resolve(ctx, c.cfg.LightTileURLs, c.cfg.DarkTileURLs, c.theme.Dark)

	c.images.Clear()
	c.layer.Reset()
	c.styleGen++
	gen := c.styleGen
	c.styleLoading = true

	c.m.OnceStyleLoad(func() { c.styleLoaded(gen) })
	c.m.SetStyle(style)
	slog.Debug("View: Style replaced", "url", style.URL, "inline", style.Document != nil)
}

func (c *Controller) styleLoaded(gen int) {
	if c.closed || gen != c.styleGen {
		return
	}
	c.styleLoading = false
	if err := c.renderMarkers(c.ctx); err != nil {
		slog.Warn("View: Failed to render markers after style load", "error", err)
	}
}

func (c *Controller) renderMarkers(ctx context.Context) error {
	cfg, th := c.cfg, c.theme
	if err := c.images.EnsureImages(ctx, c.m, c.markers, cfg, th); err != nil {
		return fmt.Errorf("failed to prepare marker images: %w", err)
	}

	return c.layer.Update(c.m, layer.Input{
		Markers:    c.markers,
		Describe:   func(mk model.MarkerRecord) markers.Descriptor { return c.images.Describe(mk, cfg, th) },
		Properties: c.props,
		Roles:      cfg.Roles(),
	})
}

func (c *Controller) tileSets(ctx context.Context) []model.TileSet {
	if c.deps.TileSets == nil {
		return nil
	}
	sets, err := c.deps.TileSets.ListTileSets(ctx)
	if err != nil {
		slog.Warn("View: Failed to list tile sets", "error", err)
		return nil
	}
	return sets
}

// Config returns the configuration of the last update, or nil.
func (c *Controller) Config(ctx context.Context) (*model.DisplayConfig, error) {
	var cfg *model.DisplayConfig
	err := c.disp.Do(ctx, func() error {
		cfg = c.cfg
		return nil
	})
	return cfg, err
}

// Markers returns the markers of the last update.
func (c *Controller) Markers(ctx context.Context) ([]model.MarkerRecord, error) {
	var out []model.MarkerRecord
	err := c.disp.Do(ctx, func() error {
		out = c.markers
		return nil
	})
	return out, err
}
