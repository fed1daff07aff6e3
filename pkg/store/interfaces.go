package store

import (
	"context"

	"notemap/pkg/model"
)

// CacheStore handles generic key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
}

// TileSetStore handles the named background tile sets.
// List order is the default selection priority.
type TileSetStore interface {
	ListTileSets(ctx context.Context) ([]model.TileSet, error)
	GetTileSet(ctx context.Context, id string) (*model.TileSet, error)
	SaveTileSet(ctx context.Context, ts *model.TileSet) error
	DeleteTileSet(ctx context.Context, id string) error
	ReplaceTileSets(ctx context.Context, sets []model.TileSet) error
}

// CameraStore keeps the last camera position of each view across reconnects.
type CameraStore interface {
	GetCamera(ctx context.Context, viewID string) (model.CameraState, bool)
	SaveCamera(ctx context.Context, viewID string, cs model.CameraState) error
	DeleteCamera(ctx context.Context, viewID string) error
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
