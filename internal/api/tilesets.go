package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"notemap/pkg/config"
	"notemap/pkg/model"
	"notemap/pkg/store"
)

var tileSetID = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// TileSetHandler manages the named background tile sets.
type TileSetHandler struct {
	store store.TileSetStore
	cfg   config.Provider
	hub   *Hub
}

// NewTileSetHandler creates a new TileSetHandler.
func NewTileSetHandler(st store.TileSetStore, cfg config.Provider, hub *Hub) *TileSetHandler {
	return &TileSetHandler{store: st, cfg: cfg, hub: hub}
}

// TileSetsResponse lists the tile sets in selection priority order.
type TileSetsResponse struct {
	Active   string          `json:"active"`
	TileSets []model.TileSet `json:"tile_sets"`
}

// HandleList returns every tile set.
// GET /api/tilesets
func (h *TileSetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sets, err := h.store.ListTileSets(r.Context())
	if err != nil {
		slog.Error("TileSets: List failed", "error", err)
		http.Error(w, "failed to list tile sets", http.StatusInternalServerError)
		return
	}
	if sets == nil {
		sets = []model.TileSet{}
	}
	writeJSON(w, http.StatusOK, TileSetsResponse{
		Active:   h.cfg.ActiveTileSet(r.Context()),
		TileSets: sets,
	})
}

// HandleSave creates or updates a tile set.
// POST /api/tilesets
func (h *TileSetHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var ts model.TileSet
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ts); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ts.ID = strings.TrimSpace(ts.ID)
	ts.Name = strings.TrimSpace(ts.Name)
	ts.LightTileURL = strings.TrimSpace(ts.LightTileURL)
	ts.DarkTileURL = strings.TrimSpace(ts.DarkTileURL)

	if !tileSetID.MatchString(ts.ID) {
		http.Error(w, "id must be lowercase letters, digits, '-' or '_'", http.StatusBadRequest)
		return
	}
	if ts.LightTileURL == "" {
		http.Error(w, "light_tile_url is required", http.StatusBadRequest)
		return
	}
	if ts.Name == "" {
		ts.Name = ts.ID
	}

	if err := h.store.SaveTileSet(r.Context(), &ts); err != nil {
		slog.Error("TileSets: Save failed", "id", ts.ID, "error", err)
		http.Error(w, "failed to save tile set", http.StatusInternalServerError)
		return
	}
	slog.Info("TileSets: Saved", "id", ts.ID)
	h.hub.RefreshAsync("")
	writeJSON(w, http.StatusOK, ts)
}

// HandleDelete removes a tile set and clears it as the active selection.
// DELETE /api/tilesets/{id}
func (h *TileSetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	err := h.store.DeleteTileSet(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "tile set not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("TileSets: Delete failed", "id", id, "error", err)
		http.Error(w, "failed to delete tile set", http.StatusInternalServerError)
		return
	}

	if h.cfg.ActiveTileSet(ctx) == id {
		if err := h.cfg.SetActiveTileSet(ctx, ""); err != nil {
			slog.Warn("TileSets: Failed to clear active selection", "error", err)
		}
	}
	slog.Info("TileSets: Deleted", "id", id)
	h.hub.RefreshAsync("")
	w.WriteHeader(http.StatusNoContent)
}

// activeFirst lists tile sets with the selected one moved to the front,
// making it the default of views without a tileSet option.
type activeFirst struct {
	store store.TileSetStore
	cfg   config.Provider
}

func (a activeFirst) ListTileSets(ctx context.Context) ([]model.TileSet, error) {
	sets, err := a.store.ListTileSets(ctx)
	if err != nil {
		return nil, err
	}
	active := a.cfg.ActiveTileSet(ctx)
	if active == "" {
		return sets, nil
	}
	for i, ts := range sets {
		if ts.ID != active {
			continue
		}
		out := make([]model.TileSet, 0, len(sets))
		out = append(out, ts)
		out = append(out, sets[:i]...)
		return append(out, sets[i+1:]...), nil
	}
	return sets, nil
}
