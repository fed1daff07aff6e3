package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"notemap/pkg/store"
)

// Provider gives access to settings that the UI can change at runtime.
type Provider interface {
	Theme(ctx context.Context) string
	SetTheme(ctx context.Context, theme string) error
	ActiveTileSet(ctx context.Context) string
	SetActiveTileSet(ctx context.Context, id string) error
	AllowZeroCoordinates(ctx context.Context) bool
	SetAllowZeroCoordinates(ctx context.Context, allow bool) error
	MarkerCacheLimit(ctx context.Context) int
	SetMarkerCacheLimit(ctx context.Context, n int) error
	WatchInterval(ctx context.Context) time.Duration

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. st may be nil.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

func (p *UnifiedProvider) Theme(ctx context.Context) string {
	th := p.getString(ctx, KeyTheme, p.base.Map.Theme)
	if !IsTheme(th) {
		return ThemeLight
	}
	return th
}

// SetTheme stores the theme chosen in the UI.
func (p *UnifiedProvider) SetTheme(ctx context.Context, theme string) error {
	if !IsTheme(theme) {
		return fmt.Errorf("invalid theme %q", theme)
	}
	return p.set(ctx, KeyTheme, theme)
}

// ActiveTileSet returns the selected tile set id, or "" for the store's first set.
func (p *UnifiedProvider) ActiveTileSet(ctx context.Context) string {
	return p.getString(ctx, KeyActiveTileSet, "")
}

// SetActiveTileSet selects a tile set. An empty id clears the selection.
func (p *UnifiedProvider) SetActiveTileSet(ctx context.Context, id string) error {
	if p.store == nil {
		return errNoStore
	}
	if id == "" {
		return p.store.DeleteState(ctx, KeyActiveTileSet)
	}
	return p.store.SetState(ctx, KeyActiveTileSet, id)
}

func (p *UnifiedProvider) AllowZeroCoordinates(ctx context.Context) bool {
	return p.getBool(ctx, KeyAllowZero, p.base.Coordinates.AllowZero)
}

func (p *UnifiedProvider) SetAllowZeroCoordinates(ctx context.Context, allow bool) error {
	return p.set(ctx, KeyAllowZero, strconv.FormatBool(allow))
}

func (p *UnifiedProvider) MarkerCacheLimit(ctx context.Context) int {
	n := p.getInt(ctx, KeyCacheLimit, p.base.Markers.CacheLimit)
	if n < 0 {
		return 0
	}
	return n
}

func (p *UnifiedProvider) SetMarkerCacheLimit(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("invalid marker cache limit %d", n)
	}
	return p.set(ctx, KeyCacheLimit, strconv.Itoa(n))
}

func (p *UnifiedProvider) WatchInterval(ctx context.Context) time.Duration {
	return time.Duration(p.base.Watcher.Interval)
}

var errNoStore = errors.New("config: no state store")

func (p *UnifiedProvider) set(ctx context.Context, key, val string) error {
	if p.store == nil {
		return errNoStore
	}
	return p.store.SetState(ctx, key, val)
}

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getInt(ctx context.Context, key string, fallback int) int {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				return i
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}
