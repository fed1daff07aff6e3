package maintenance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"notemap/pkg/db"
	"notemap/pkg/model"
	"notemap/pkg/store"
)

const tileSetsStateKey = "tile_sets_csv_mtime"

// Run executes all maintenance tasks: tile set import and cache pruning.
// Failures are logged; it never blocks startup.
func Run(ctx context.Context, s store.Store, d *db.DB, csvPath string, cacheTTL time.Duration) error {
	slog.Info("Starting database maintenance...")

	if err := importTileSets(ctx, s, csvPath); err != nil {
		slog.Error("Tile set import failed", "error", err)
	} else {
		slog.Info("Tile set import check completed")
	}

	if err := d.PruneCache(cacheTTL); err != nil {
		slog.Error("Cache pruning failed", "error", err)
	} else {
		slog.Info("Cache pruning completed")
	}

	return nil
}

// importTileSets replaces the stored tile sets with the CSV contents when the file changed.
// Columns: ID,Name,Light,Dark.
func importTileSets(ctx context.Context, s store.Store, csvPath string) error {
	if csvPath == "" {
		return nil
	}
	info, err := os.Stat(csvPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat csv: %w", err)
	}

	fileMTime := info.ModTime().UTC().Format(time.RFC3339)
	if stored, found := s.GetState(ctx, tileSetsStateKey); found && stored == fileMTime {
		return nil
	}

	slog.Info("Importing tile sets from CSV...", "path", csvPath)

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	sets, err := readTileSets(f)
	if err != nil {
		return err
	}
	if err := s.ReplaceTileSets(ctx, sets); err != nil {
		return fmt.Errorf("failed to store tile sets: %w", err)
	}
	slog.Info("Imported tile sets", "count", len(sets))

	if err := s.SetState(ctx, tileSetsStateKey, fileMTime); err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	return nil
}

func readTileSets(r io.Reader) ([]model.TileSet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	// Strip a UTF-8 BOM written by spreadsheet exports.
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\xef\xbb\xbf")
	}

	idx := make(map[string]int)
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	get := func(row []string, col string) string {
		if i, ok := idx[col]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var sets []model.TileSet
	seen := make(map[string]bool)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read error: %w", err)
		}

		ts := model.TileSet{
			ID:           get(row, "id"),
			Name:         get(row, "name"),
			LightTileURL: get(row, "light"),
			DarkTileURL:  get(row, "dark"),
		}
		if ts.ID == "" || seen[ts.ID] {
			slog.Warn("Skipping tile set row", "row", len(sets)+1, "id", ts.ID)
			continue
		}
		if ts.LightTileURL == "" && ts.DarkTileURL == "" {
			slog.Warn("Skipping tile set without URLs", "id", ts.ID)
			continue
		}
		seen[ts.ID] = true
		sets = append(sets, ts)
	}
	return sets, nil
}
