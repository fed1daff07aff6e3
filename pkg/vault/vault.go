package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// TrashDir is the vault-relative folder deleted notes are moved to.
const TrashDir = ".trash"

// ErrNotFound is returned for paths that are not notes of the vault.
var ErrNotFound = errors.New("note not found")

// Vault is an in-memory index of the markdown notes below a root directory.
type Vault struct {
	root string

	mu    sync.RWMutex
	notes map[string]*Note
}

// Open indexes root. The directory must exist.
func Open(ctx context.Context, root string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault %s is not a directory", abs)
	}

	v := &Vault{root: abs, notes: make(map[string]*Note)}
	if _, err := v.Scan(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// Root returns the absolute vault directory.
func (v *Vault) Root() string { return v.root }

// Scan re-reads notes whose size or modification time changed and drops removed ones.
// It reports whether anything changed.
func (v *Vault) Scan(ctx context.Context) (bool, error) {
	seen := make(map[string]bool)
	changed := false

	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("Vault: Skipping unreadable entry", "path", p, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != v.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(p), ".md") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		v.mu.RLock()
		old := v.notes[rel]
		v.mu.RUnlock()
		if old != nil && old.modTime.Equal(info.ModTime()) && old.size == info.Size() {
			return nil
		}

		n := load(p, rel, info)
		v.mu.Lock()
		v.notes[rel] = n
		v.mu.Unlock()
		changed = true
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("failed to scan vault: %w", err)
	}

	v.mu.Lock()
	for p := range v.notes {
		if !seen[p] {
			delete(v.notes, p)
			changed = true
		}
	}
	v.mu.Unlock()

	return changed, nil
}

func load(abs, rel string, info fs.FileInfo) *Note {
	n := &Note{path: rel, modTime: info.ModTime(), size: info.Size(), props: map[string]any{}}

	data, err := os.ReadFile(abs)
	if err != nil {
		n.parseErr = err
		slog.Warn("Vault: Failed to read note", "path", rel, "error", err)
		return n
	}
	props, err := ParseFrontmatter(data)
	switch {
	case errors.Is(err, ErrNoFrontmatter):
	case err != nil:
		n.parseErr = err
		slog.Warn("Vault: Invalid frontmatter", "path", rel, "error", err)
	default:
		n.props = props
	}
	return n
}

// Notes returns every note ordered by path.
func (v *Vault) Notes() []*Note {
	v.mu.RLock()
	out := make([]*Note, 0, len(v.notes))
	for _, n := range v.notes {
		out = append(out, n)
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// Note returns the note at a vault-relative path.
func (v *Vault) Note(p string) (*Note, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n, ok := v.notes[p]
	return n, ok
}

// Len returns the number of indexed notes.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.notes)
}

// ReadRaw returns the file content of a note.
func (v *Vault) ReadRaw(p string) ([]byte, error) {
	if _, ok := v.Note(p); !ok {
		return nil, ErrNotFound
	}
	return os.ReadFile(filepath.Join(v.root, filepath.FromSlash(p)))
}

// Delete moves a note into TrashDir, keeping its relative folder.
func (v *Vault) Delete(p string) error {
	if _, ok := v.Note(p); !ok {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}

	src := filepath.Join(v.root, filepath.FromSlash(p))
	dst := filepath.Join(v.root, TrashDir, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create trash folder: %w", err)
	}
	dst = freeName(dst)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move note to trash: %w", err)
	}

	v.mu.Lock()
	delete(v.notes, p)
	v.mu.Unlock()

	slog.Info("Vault: Note moved to trash", "path", p)
	return nil
}

// freeName appends " 1", " 2", ... to the base name until dst does not exist.
func freeName(dst string) string {
	if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
		return dst
	}
	ext := filepath.Ext(dst)
	base := strings.TrimSuffix(dst, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s %d%s", base, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}
