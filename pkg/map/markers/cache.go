// Package markers synthesizes marker bitmaps and registers them with the map engine.
package markers

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"notemap/pkg/engine"
	"notemap/pkg/model"
)

// Glyph is the marker appearance requested by one record.
type Glyph struct {
	Icon   string
	Color  string
	Markup string
}

// Descriptor describes the registered image of a marker.
type Descriptor struct {
	Key         string
	FixedSize   bool
	RenderError string
	// Loaded is false until EnsureImages registered the image.
	Loaded bool
}

type entry struct {
	rendered Rendered
}

type entryStore interface {
	Get(key string) (*entry, bool)
	// Peek looks up key without touching its recency.
	Peek(key string) (*entry, bool)
	Add(key string, e *entry)
	Purge()
	Len() int
}

type mapStore map[string]*entry

func (s mapStore) Get(key string) (*entry, bool)  { e, ok := s[key]; return e, ok }
func (s mapStore) Peek(key string) (*entry, bool) { return s.Get(key) }
func (s mapStore) Add(key string, e *entry)       { s[key] = e }
func (s mapStore) Purge()                         { clear(s) }
func (s mapStore) Len() int                       { return len(s) }

type lruStore struct {
	c *lru.Cache[string, *entry]
}

func (s lruStore) Get(key string) (*entry, bool)  { return s.c.Get(key) }
func (s lruStore) Peek(key string) (*entry, bool) { return s.c.Peek(key) }
func (s lruStore) Add(key string, e *entry)       { s.c.Add(key, e) }
func (s lruStore) Purge()                         { s.c.Purge() }
func (s lruStore) Len() int                       { return s.c.Len() }

// Cache memoizes marker images per view.
// It is unbounded unless created with a positive limit.
type Cache struct {
	mu      sync.Mutex
	entries entryStore
	evicted []string
	workers int
}

// NewCache creates a cache. A positive limit bounds it with LRU eviction.
func NewCache(limit int) *Cache {
	c := &Cache{workers: runtime.GOMAXPROCS(0)}
	if limit > 0 {
		l, err := lru.NewWithEvict[string, *entry](limit, func(key string, _ *entry) {
			// Runs under c.mu from Add.
			c.evicted = append(c.evicted, key)
		})
		if err == nil {
			c.entries = lruStore{c: l}
			return c
		}
		slog.Warn("Markers: Invalid cache limit, using unbounded cache", "limit", limit, "error", err)
	}
	c.entries = make(mapStore)
	return c
}

// GlyphOf reads the glyph properties of a record.
func GlyphOf(rec model.Record, cfg *model.DisplayConfig) Glyph {
	return Glyph{
		Icon:   propString(rec, cfg.IconProp),
		Color:  propString(rec, cfg.ColorProp),
		Markup: propString(rec, cfg.VectorMarkupProp),
	}
}

func propString(rec model.Record, prop string) string {
	if prop == "" {
		return ""
	}
	v, err := rec.Property(prop)
	if err != nil {
		slog.Debug("Markers: Property unreadable", "path", rec.Path(), "property", prop, "error", err)
		return ""
	}
	return model.StringValue(v)
}

// Key returns the image key of a glyph under a theme.
func Key(g Glyph, th Theme) string {
	if g.Markup != "" {
		return fmt.Sprintf("svg-%016x", xxhash.Sum64String(g.Markup))
	}
	icon := g.Icon
	if icon == "" {
		icon = "none"
	}
	return fmt.Sprintf("dot-%016x", xxhash.Sum64String(icon+"|"+hexColor(th.markerColor(g.Color))))
}

// Describe looks up the descriptor of a marker without rendering anything.
func (c *Cache) Describe(m model.MarkerRecord, cfg *model.DisplayConfig, th Theme) Descriptor {
	key := Key(GlyphOf(m.Record, cfg), th)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok {
		return Descriptor{Key: key}
	}
	return Descriptor{
		Key:         key,
		FixedSize:   e.rendered.FixedSize,
		RenderError: e.rendered.RenderError,
		Loaded:      true,
	}
}

// Clear drops every cached image. Call it when the engine's image table was reset.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.evicted = nil
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

type job struct {
	key   string
	glyph Glyph
	out   Rendered
	err   error
}

// EnsureImages renders and registers every image the markers need.
// A failing marker is logged and skipped; only context cancellation is returned.
func (c *Cache) EnsureImages(ctx context.Context, reg engine.ImageRegistry, markers []model.MarkerRecord, cfg *model.DisplayConfig, th Theme) error {
	// 1. Collect distinct keys, re-pushing cached images the engine has lost.
	var jobs []*job
	seen := make(map[string]bool)

	c.mu.Lock()
	for _, m := range markers {
		g := GlyphOf(m.Record, cfg)
		key := Key(g, th)
		if seen[key] {
			continue
		}
		seen[key] = true

		if e, ok := c.entries.Get(key); ok {
			if !reg.HasImage(key) {
				if err := reg.AddImage(key, e.rendered.Image, e.rendered.PixelRatio); err != nil {
					slog.Warn("Markers: Failed to re-register image", "key", key, "error", err)
				}
			}
			continue
		}
		jobs = append(jobs, &job{key: key, glyph: g})
	}
	c.mu.Unlock()

	if len(jobs) == 0 {
		return nil
	}

	// 2. Render new keys in parallel.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			j.out, j.err = render(j.glyph, th)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// 3. Register, replacing stale registrations under the same key.
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range jobs {
		if j.err != nil {
			slog.Warn("Markers: Failed to render marker image", "key", j.key, "error", j.err)
			continue
		}
		if j.out.RenderError != "" {
			slog.Debug("Markers: Using error glyph", "key", j.key, "reason", j.out.RenderError)
		}
		if reg.HasImage(j.key) {
			reg.RemoveImage(j.key)
		}
		if err := reg.AddImage(j.key, j.out.Image, j.out.PixelRatio); err != nil {
			slog.Warn("Markers: Failed to register marker image", "key", j.key, "error", err)
			continue
		}
		c.entries.Add(j.key, &entry{rendered: j.out})
	}

	for _, key := range c.evicted {
		if seen[key] {
			continue
		}
		if reg.HasImage(key) {
			reg.RemoveImage(key)
		}
	}
	c.evicted = nil
	return nil
}

func render(g Glyph, th Theme) (Rendered, error) {
	if g.Markup != "" {
		return RenderVector(g.Markup)
	}
	return RenderComposite(g.Icon, th.markerColor(g.Color), th.iconColor())
}
