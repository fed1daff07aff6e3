package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"notemap/pkg/config"
	"notemap/pkg/store"
)

// ConfigHandler handles configuration API requests.
type ConfigHandler struct {
	tileSets store.TileSetStore
	cfgProv  config.Provider
	appCfg   *config.Config
	hub      *Hub
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(ts store.TileSetStore, cfg config.Provider, hub *Hub) *ConfigHandler {
	return &ConfigHandler{
		tileSets: ts,
		cfgProv:  cfg,
		appCfg:   cfg.AppConfig(),
		hub:      hub,
	}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	Theme                string `json:"theme"`
	ActiveTileSet        string `json:"active_tile_set"`
	AllowZeroCoordinates bool   `json:"allow_zero_coordinates"`
	MarkerCacheLimit     int    `json:"marker_cache_limit"`
	WatchInterval        string `json:"watch_interval"`
	VaultPath            string `json:"vault_path"`
	HasAccessToken       bool   `json:"has_access_token"`
}

// ConfigRequest represents the config API request for updates.
// Pointers distinguish an omitted field from an empty value.
type ConfigRequest struct {
	Theme                *string `json:"theme,omitempty"`
	ActiveTileSet        *string `json:"active_tile_set,omitempty"`
	AllowZeroCoordinates *bool   `json:"allow_zero_coordinates,omitempty"`
	MarkerCacheLimit     *int    `json:"marker_cache_limit,omitempty"`
}

// HandleConfig is a unified handler for all config-related methods, facilitating CORS/OPTIONS.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.HandleGetConfig(w, r)
	case http.MethodPut:
		h.HandleSetConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleGetConfig returns the current configuration.
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.response(r))
}

func (h *ConfigHandler) response(r *http.Request) ConfigResponse {
	ctx := r.Context()
	return ConfigResponse{
		Theme:                h.cfgProv.Theme(ctx),
		ActiveTileSet:        h.cfgProv.ActiveTileSet(ctx),
		AllowZeroCoordinates: h.cfgProv.AllowZeroCoordinates(ctx),
		MarkerCacheLimit:     h.cfgProv.MarkerCacheLimit(ctx),
		WatchInterval:        h.cfgProv.WatchInterval(ctx).String(),
		VaultPath:            h.appCfg.Vault.Path,
		HasAccessToken:       h.appCfg.Map.AccessToken != "",
	}
}

// HandleSetConfig applies runtime settings and pushes them to the open views.
// Coordinate parsing and cache size apply to views opened afterwards.
func (h *ConfigHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConfigRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// 1. Validate everything before persisting anything
	if req.Theme != nil && !config.IsTheme(*req.Theme) {
		http.Error(w, "theme must be 'light' or 'dark'", http.StatusBadRequest)
		return
	}
	if req.MarkerCacheLimit != nil && *req.MarkerCacheLimit < 0 {
		http.Error(w, "marker_cache_limit must be >= 0", http.StatusBadRequest)
		return
	}
	if req.ActiveTileSet != nil && *req.ActiveTileSet != "" {
		ts, err := h.tileSets.GetTileSet(ctx, *req.ActiveTileSet)
		if err != nil {
			slog.Error("Config: Tile set lookup failed", "error", err)
			http.Error(w, "failed to look up tile set", http.StatusInternalServerError)
			return
		}
		if ts == nil {
			http.Error(w, "unknown tile set", http.StatusBadRequest)
			return
		}
	}

	// 2. Persist
	themeChanged, tilesChanged := false, false
	if req.Theme != nil && *req.Theme != h.cfgProv.Theme(ctx) {
		if !h.persist(w, h.cfgProv.SetTheme(ctx, *req.Theme)) {
			return
		}
		themeChanged = true
	}
	if req.ActiveTileSet != nil && *req.ActiveTileSet != h.cfgProv.ActiveTileSet(ctx) {
		if !h.persist(w, h.cfgProv.SetActiveTileSet(ctx, *req.ActiveTileSet)) {
			return
		}
		tilesChanged = true
	}
	if req.AllowZeroCoordinates != nil {
		if !h.persist(w, h.cfgProv.SetAllowZeroCoordinates(ctx, *req.AllowZeroCoordinates)) {
			return
		}
	}
	if req.MarkerCacheLimit != nil {
		if !h.persist(w, h.cfgProv.SetMarkerCacheLimit(ctx, *req.MarkerCacheLimit)) {
			return
		}
	}

	// 3. Notify open views
	if themeChanged {
		slog.Info("Config: Theme changed", "theme", *req.Theme)
		th := ThemeFor(*req.Theme)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			h.hub.SetTheme(ctx, th)
		}()
	}
	if tilesChanged {
		slog.Info("Config: Active tile set changed", "id", *req.ActiveTileSet)
		h.hub.RefreshAsync("")
	}

	writeJSON(w, http.StatusOK, h.response(r))
}

func (h *ConfigHandler) persist(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	slog.Error("Config: Failed to persist setting", "error", err)
	http.Error(w, "failed to save setting", http.StatusInternalServerError)
	return false
}
