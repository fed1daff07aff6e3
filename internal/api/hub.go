package api

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"notemap/pkg/config"
	"notemap/pkg/map/markers"
	"notemap/pkg/view"
)

// viewController is the part of view.Controller the hub drives.
type viewController interface {
	OnDataUpdated(ctx context.Context) error
	OnThemeChange(ctx context.Context, th markers.Theme) error
}

const refreshTimeout = 30 * time.Second

type liveView struct {
	sessionID string
	viewID    string
	clientID  string
	ctrl      viewController
	// cancel ends the view's connection.
	cancel context.CancelFunc
}

// Hub tracks the controllers of connected map views so that vault changes,
// settings and tile set edits reach every open map.
type Hub struct {
	mu    sync.RWMutex
	views map[string]*liveView
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{views: make(map[string]*liveView)}
}

func (h *Hub) add(lv *liveView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views[lv.sessionID] = lv
}

func (h *Hub) remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.views, sessionID)
}

// snapshot returns the live views of viewID ("" selects all), ordered by session.
func (h *Hub) snapshot(viewID string) []*liveView {
	h.mu.RLock()
	out := make([]*liveView, 0, len(h.views))
	for _, lv := range h.views {
		if viewID == "" || lv.viewID == viewID {
			out = append(out, lv)
		}
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].sessionID < out[j].sessionID })
	return out
}

// Close disconnects every view. Hijacked websocket connections are not
// closed by http.Server.Shutdown.
func (h *Hub) Close() {
	for _, lv := range h.snapshot("") {
		if lv.cancel != nil {
			lv.cancel()
		}
	}
}

// Len returns the number of connected views.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.views)
}

// Refresh re-runs the data update of every connected view of viewID ("" for all).
func (h *Hub) Refresh(ctx context.Context, viewID string) {
	for _, lv := range h.snapshot(viewID) {
		if err := lv.ctrl.OnDataUpdated(ctx); err != nil {
			logControllerError("Hub: Refresh failed", lv, err)
		}
	}
}

// RefreshAsync runs Refresh in the background, bounded by refreshTimeout.
func (h *Hub) RefreshAsync(viewID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		h.Refresh(ctx, viewID)
	}()
}

// RefreshClientAsync refreshes the views opened by one client, whose
// "this." center formulas follow that client's active note.
func (h *Hub) RefreshClientAsync(clientID string) {
	if clientID == "" {
		return
	}
	var views []*liveView
	for _, lv := range h.snapshot("") {
		if lv.clientID == clientID {
			views = append(views, lv)
		}
	}
	if len(views) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		for _, lv := range views {
			if err := lv.ctrl.OnDataUpdated(ctx); err != nil {
				logControllerError("Hub: Refresh failed", lv, err)
			}
		}
	}()
}

// SetTheme switches every connected view to th.
func (h *Hub) SetTheme(ctx context.Context, th markers.Theme) {
	for _, lv := range h.snapshot("") {
		if err := lv.ctrl.OnThemeChange(ctx, th); err != nil {
			logControllerError("Hub: Theme change failed", lv, err)
		}
	}
}

func logControllerError(msg string, lv *liveView, err error) {
	// Views closing concurrently are expected
	if errors.Is(err, view.ErrClosed) || errors.Is(err, context.Canceled) {
		slog.Debug(msg, "session", lv.sessionID, "view", lv.viewID, "error", err)
		return
	}
	slog.Warn(msg, "session", lv.sessionID, "view", lv.viewID, "error", err)
}

// ThemeFor returns the marker palette of a theme name.
func ThemeFor(name string) markers.Theme {
	if name == config.ThemeDark {
		return markers.DarkTheme()
	}
	return markers.LightTheme()
}
