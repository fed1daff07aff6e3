package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"notemap/pkg/db"
	"notemap/pkg/model"
)

// setupTestStore creates a test database and store for each test.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewSQLiteStore(d)
}

// =============================================================================
// TileSetStore Tests
// =============================================================================

func TestTileSetStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	osm := &model.TileSet{ID: "osm", Name: "OSM", LightTileURL: "https://tile.openstreetmap.org/{z}/{x}/{y}.png"}
	topo := &model.TileSet{ID: "topo", Name: "Topo", LightTileURL: "https://a.tile.opentopomap.org/{z}/{x}/{y}.png", DarkTileURL: "https://dark.example/{z}/{x}/{y}.png"}

	for _, ts := range []*model.TileSet{osm, topo} {
		if err := s.SaveTileSet(ctx, ts); err != nil {
			t.Fatalf("SaveTileSet(%s) failed: %v", ts.ID, err)
		}
	}

	// Updating keeps the position.
	osm.Name = "OpenStreetMap"
	if err := s.SaveTileSet(ctx, osm); err != nil {
		t.Fatal(err)
	}

	sets, err := s.ListTileSets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 tile sets, got %d", len(sets))
	}
	if sets[0].ID != "osm" || sets[0].Name != "OpenStreetMap" {
		t.Errorf("unexpected first tile set: %+v", sets[0])
	}
	if sets[1].DarkTileURL != topo.DarkTileURL {
		t.Errorf("dark url not persisted: %+v", sets[1])
	}

	got, err := s.GetTileSet(ctx, "topo")
	if err != nil || got == nil {
		t.Fatalf("GetTileSet failed: %v %v", got, err)
	}
	missing, err := s.GetTileSet(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for missing tile set, got %v %v", missing, err)
	}

	if err := s.DeleteTileSet(ctx, "osm"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTileSet(ctx, "osm"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTileSetStore_Replace(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if err := s.SaveTileSet(ctx, &model.TileSet{ID: "old", Name: "Old"}); err != nil {
		t.Fatal(err)
	}

	err := s.ReplaceTileSets(ctx, []model.TileSet{
		{ID: "b", Name: "B"},
		{ID: "a", Name: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	sets, err := s.ListTileSets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 || sets[0].ID != "b" || sets[1].ID != "a" {
		t.Errorf("expected [b a], got %+v", sets)
	}
}

// =============================================================================
// CameraStore Tests
// =============================================================================

func TestCameraStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if _, ok := s.GetCamera(ctx, "view-1"); ok {
		t.Fatal("expected no camera for new view")
	}

	zoom := 5.0
	cs := model.CameraState{Center: &model.LngLat{Lng: 10, Lat: 20}, Zoom: &zoom}
	if err := s.SaveCamera(ctx, "view-1", cs); err != nil {
		t.Fatal(err)
	}

	got, ok := s.GetCamera(ctx, "view-1")
	if !ok {
		t.Fatal("camera not found after save")
	}
	if got.Center.Lng != 10 || got.Center.Lat != 20 || *got.Zoom != 5 {
		t.Errorf("unexpected camera: %+v", got)
	}

	if err := s.DeleteCamera(ctx, "view-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetCamera(ctx, "view-1"); ok {
		t.Error("camera still present after delete")
	}
}

// =============================================================================
// CacheStore / StateStore Tests
// =============================================================================

func TestCacheStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	payload := []byte(`{"version":8,"sources":{}}`)
	if err := s.SetCache(ctx, "style:https://example.com/style.json", payload); err != nil {
		t.Fatal(err)
	}

	got, ok := s.GetCache(ctx, "style:https://example.com/style.json")
	if !ok || string(got) != string(payload) {
		t.Errorf("GetCache = %q, %v", got, ok)
	}

	has, err := s.HasCache(ctx, "style:missing")
	if err != nil || has {
		t.Errorf("HasCache(missing) = %v, %v", has, err)
	}

	keys, err := s.ListCacheKeys(ctx, "style:")
	if err != nil || len(keys) != 1 {
		t.Errorf("ListCacheKeys = %v, %v", keys, err)
	}
}

func TestStateStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if err := s.SetState(ctx, "theme", "dark"); err != nil {
		t.Fatal(err)
	}
	if v, ok := s.GetState(ctx, "theme"); !ok || v != "dark" {
		t.Errorf("GetState = %q, %v", v, ok)
	}
	if err := s.DeleteState(ctx, "theme"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetState(ctx, "theme"); ok {
		t.Error("state still present after delete")
	}
}
