package session

import (
	"context"
	"errors"
	"testing"

	"notemap/pkg/model"
)

type memCameras struct {
	data    map[string]model.CameraState
	deleted []string
	saveErr error
}

func newMemCameras() *memCameras {
	return &memCameras{data: make(map[string]model.CameraState)}
}

func (m *memCameras) GetCamera(_ context.Context, viewID string) (model.CameraState, bool) {
	cs, ok := m.data[viewID]
	return cs, ok
}

func (m *memCameras) SaveCamera(_ context.Context, viewID string, cs model.CameraState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[viewID] = cs
	return nil
}

func (m *memCameras) DeleteCamera(_ context.Context, viewID string) error {
	delete(m.data, viewID)
	m.deleted = append(m.deleted, viewID)
	return nil
}

func camera(lng, lat, zoom float64) model.CameraState {
	return model.CameraState{Center: &model.LngLat{Lng: lng, Lat: lat}, Zoom: &zoom}
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	cams := newMemCameras()
	m := NewManager(cams)

	// Open
	a := m.Open("places")
	b := m.Open("places")
	c := m.Open("travel")
	if a.ID == b.ID {
		t.Fatal("session ids must be unique")
	}
	if got := m.Count("places"); got != 2 {
		t.Errorf("Count(places) = %d, want 2", got)
	}
	if got := len(m.List()); got != 3 {
		t.Errorf("List() returned %d sessions, want 3", got)
	}
	if _, ok := m.Get(c.ID); !ok {
		t.Error("Get() did not find open session")
	}

	// Close persists the camera
	m.Close(ctx, a.ID, camera(10, 20, 5))
	if _, ok := m.Get(a.ID); ok {
		t.Error("closed session still listed")
	}
	cs, ok := m.Restore(ctx, "places")
	if !ok {
		t.Fatal("Restore() found nothing after Close")
	}
	if cs.Center.Lng != 10 || *cs.Zoom != 5 {
		t.Errorf("Restore() = %+v", cs)
	}

	// Zero camera is not persisted
	m.Close(ctx, c.ID, model.CameraState{})
	if _, ok := cams.data["travel"]; ok {
		t.Error("zero camera persisted")
	}

	// Unknown and repeated closes are ignored
	m.Close(ctx, "unknown", camera(1, 1, 1))
	m.Close(ctx, a.ID, camera(1, 1, 1))
	if cams.data["places"].Center.Lng != 10 {
		t.Error("repeated close overwrote camera")
	}
}

func TestManager_SaveError(t *testing.T) {
	cams := newMemCameras()
	cams.saveErr = errors.New("read-only")
	m := NewManager(cams)
	s := m.Open("v")
	m.Close(context.Background(), s.ID, camera(1, 2, 3))
	if len(cams.data) != 0 {
		t.Error("camera stored despite error")
	}
}

func TestManager_NoPersistence(t *testing.T) {
	m := NewManager(nil)
	s := m.Open("v")
	m.Close(context.Background(), s.ID, camera(1, 2, 3))
	if _, ok := m.Restore(context.Background(), "v"); ok {
		t.Error("Restore() without store returned a camera")
	}
}
