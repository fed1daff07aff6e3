package session

import (
	"context"
	"fmt"
	"log/slog"

	"notemap/pkg/geo"
	"notemap/pkg/model"
	"notemap/pkg/store"
)

// TryRestore loads the persisted camera of a view. Invalid entries are deleted.
func TryRestore(ctx context.Context, st store.CameraStore, viewID string) (model.CameraState, bool) {
	cs, found := st.GetCamera(ctx, viewID)
	if !found || cs.IsZero() {
		return model.CameraState{}, false
	}

	// 1. Validate center
	if cs.Center != nil && !geo.Valid(cs.Center.Lat, cs.Center.Lng) {
		slog.Warn("Session: Discarding persisted camera with invalid center", "view", viewID)
		_ = st.DeleteCamera(ctx, viewID)
		return model.CameraState{}, false
	}

	// 2. Validate zoom
	if cs.Zoom != nil && (*cs.Zoom < model.MinZoomLevel || *cs.Zoom > model.MaxZoomLevel) {
		slog.Warn("Session: Discarding persisted camera with invalid zoom", "view", viewID, "zoom", *cs.Zoom)
		_ = st.DeleteCamera(ctx, viewID)
		return model.CameraState{}, false
	}

	slog.Info("Session: Restored camera", "view", viewID)
	return cs, true
}

// Persist stores the camera of a view.
func Persist(ctx context.Context, st store.CameraStore, viewID string, cs model.CameraState) error {
	if err := st.SaveCamera(ctx, viewID, cs); err != nil {
		return fmt.Errorf("failed to save camera of %s: %w", viewID, err)
	}
	return nil
}
