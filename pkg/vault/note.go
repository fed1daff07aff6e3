// Package vault reads a folder of markdown notes with YAML frontmatter and
// exposes them as map records.
package vault

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoFrontmatter is returned when a note does not start with a frontmatter block.
var ErrNoFrontmatter = errors.New("no frontmatter")

// Note is one markdown file of the vault.
type Note struct {
	path    string
	props   map[string]any
	modTime time.Time
	size    int64
	// parseErr is kept so unreadable notes still show up without properties.
	parseErr error
}

// Path is the slash separated path relative to the vault root.
func (n *Note) Path() string { return n.path }

// Name is the file name without extension.
func (n *Note) Name() string {
	return strings.TrimSuffix(path.Base(n.path), path.Ext(n.path))
}

// Frontmatter returns the parsed frontmatter. Callers must not modify it.
func (n *Note) Frontmatter() map[string]any { return n.props }

// ModTime returns the modification time seen by the last scan.
func (n *Note) ModTime() time.Time { return n.modTime }

// Property resolves "note.<key>", "file.<field>" or a bare frontmatter key.
func (n *Note) Property(id string) (any, error) {
	scope, key, ok := strings.Cut(id, ".")
	if !ok {
		scope, key = "note", id
	}

	switch scope {
	case "note":
		if n.parseErr != nil {
			return nil, fmt.Errorf("%s: %w", n.path, n.parseErr)
		}
		return n.props[key], nil
	case "file":
		return n.fileProperty(key), nil
	case "formula":
		return nil, fmt.Errorf("formula %q is not supported", key)
	}

	// Dotted frontmatter keys such as "geo.lat".
	if n.parseErr != nil {
		return nil, fmt.Errorf("%s: %w", n.path, n.parseErr)
	}
	return n.props[id], nil
}

func (n *Note) fileProperty(key string) any {
	switch key {
	case "name":
		return n.Name()
	case "basename":
		return path.Base(n.path)
	case "path":
		return n.path
	case "folder":
		if dir := path.Dir(n.path); dir != "." {
			return dir
		}
		return ""
	case "ext":
		return strings.TrimPrefix(path.Ext(n.path), ".")
	case "mtime":
		return n.modTime.Format(time.DateTime)
	case "size":
		return float64(n.size)
	case "tags":
		return n.Tags()
	}
	return nil
}

// Tags returns the frontmatter tags without a leading '#'.
func (n *Note) Tags() []string {
	var out []string
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "#")
		if s != "" {
			out = append(out, s)
		}
	}
	switch v := n.props["tags"].(type) {
	case string:
		for _, t := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			add(t)
		}
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				add(s)
			}
		}
	}
	return out
}

// HasTag reports whether the note carries tag or a nested tag below it.
func (n *Note) HasTag(tag string) bool {
	tag = strings.TrimPrefix(tag, "#")
	for _, t := range n.Tags() {
		if t == tag || strings.HasPrefix(t, tag+"/") {
			return true
		}
	}
	return false
}

// ParseFrontmatter extracts the YAML block delimited by "---" lines at the top of data.
func ParseFrontmatter(data []byte) (map[string]any, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(data, []byte("---\n")) {
		return nil, ErrNoFrontmatter
	}
	rest := data[4:]

	end := -1
	for offset := 0; offset <= len(rest); {
		line, _, _ := bytes.Cut(rest[offset:], []byte("\n"))
		if trimmed := bytes.TrimRight(line, " \t"); bytes.Equal(trimmed, []byte("---")) || bytes.Equal(trimmed, []byte("...")) {
			end = offset
			break
		}
		next := bytes.IndexByte(rest[offset:], '\n')
		if next < 0 {
			break
		}
		offset += next + 1
	}
	if end < 0 {
		return nil, errors.New("unterminated frontmatter")
	}

	props := make(map[string]any)
	if err := yaml.Unmarshal(rest[:end], &props); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return props, nil
}
