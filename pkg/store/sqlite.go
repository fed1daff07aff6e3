package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"notemap/pkg/db"
	"notemap/pkg/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the repository interface.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	CacheStore
	TileSetStore
	CameraStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Tile Sets ---

func (s *SQLiteStore) ListTileSets(ctx context.Context) ([]model.TileSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, light_url, dark_url FROM tile_sets ORDER BY position, created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TileSet
	for rows.Next() {
		var ts model.TileSet
		var light, dark sql.NullString
		if err := rows.Scan(&ts.ID, &ts.Name, &light, &dark); err != nil {
			return nil, err
		}
		ts.LightTileURL = light.String
		ts.DarkTileURL = dark.String
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetTileSet(ctx context.Context, id string) (*model.TileSet, error) {
	var ts model.TileSet
	var light, dark sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, light_url, dark_url FROM tile_sets WHERE id = ?`, id).
		Scan(&ts.ID, &ts.Name, &light, &dark)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts.LightTileURL = light.String
	ts.DarkTileURL = dark.String
	return &ts, nil
}

// SaveTileSet updates an existing tile set in place or appends a new one.
func (s *SQLiteStore) SaveTileSet(ctx context.Context, ts *model.TileSet) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tile_sets SET name = ?, light_url = ?, dark_url = ? WHERE id = ?`,
		ts.Name, ts.LightTileURL, ts.DarkTileURL, ts.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tile_sets (id, name, light_url, dark_url, position)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM tile_sets))`,
		ts.ID, ts.Name, ts.LightTileURL, ts.DarkTileURL)
	return err
}

func (s *SQLiteStore) DeleteTileSet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tile_sets WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceTileSets swaps the whole list in one transaction, keeping the given order.
func (s *SQLiteStore) ReplaceTileSets(ctx context.Context, sets []model.TileSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tile_sets"); err != nil {
		return err
	}
	for i, ts := range sets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tile_sets (id, name, light_url, dark_url, position) VALUES (?, ?, ?, ?, ?)`,
			ts.ID, ts.Name, ts.LightTileURL, ts.DarkTileURL, i); err != nil {
			return fmt.Errorf("failed to insert tile set %q: %w", ts.ID, err)
		}
	}
	return tx.Commit()
}

// --- Camera ---

func (s *SQLiteStore) GetCamera(ctx context.Context, viewID string) (model.CameraState, bool) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM view_camera WHERE view_id = ?", viewID).Scan(&raw)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("Store: Failed to read camera", "view", viewID, "error", err)
		}
		return model.CameraState{}, false
	}
	var cs model.CameraState
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		slog.Warn("Store: Discarding corrupt camera state", "view", viewID, "error", err)
		return model.CameraState{}, false
	}
	return cs, !cs.IsZero()
}

func (s *SQLiteStore) SaveCamera(ctx context.Context, viewID string, cs model.CameraState) error {
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO view_camera (view_id, state, updated_at) VALUES (?, ?, ?)`,
		viewID, string(b), time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteCamera(ctx context.Context, viewID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM view_camera WHERE view_id = ?", viewID)
	return err
}

// --- Cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache WHERE key = ?", key).Scan(&val)
	if err != nil {
		return nil, false
	}

	// Transparent decompression
	if len(val) > 2 && val[0] == 0x1f && val[1] == 0x8b {
		if decompressed, err := decompress(val); err == nil {
			return decompressed, true
		}
	}
	return val, true
}

func (s *SQLiteStore) HasCache(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM cache WHERE key = ?", key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	if compressed, err := compress(val); err == nil {
		val = compressed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)`,
		key, val, time.Now().UTC().Format("2006-01-02 15:04:05"))
	return err
}

func (s *SQLiteStore) ListCacheKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache WHERE key LIKE ? ORDER BY key", prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

var (
	gzipWriterPool = sync.Pool{
		New: func() any { return gzip.NewWriter(io.Discard) },
	}
	bufferPool = sync.Pool{
		New: func() any { return new(bytes.Buffer) },
	}
)

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// buf goes back to the pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
