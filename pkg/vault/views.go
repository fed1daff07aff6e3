package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"notemap/pkg/model"
)

// ErrNoActiveNote is returned when a "this." formula has no note to read from.
var ErrNoActiveNote = errors.New("no active note")

// ViewDef is one map view over the vault.
type ViewDef struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Folder and Tag restrict the notes shown; empty means all notes.
	Folder string `yaml:"folder,omitempty" json:"folder,omitempty"`
	Tag    string `yaml:"tag,omitempty" json:"tag,omitempty"`
	// Order lists the displayable property ids.
	Order []string `yaml:"order,omitempty" json:"order,omitempty"`
	// Labels overrides property display names.
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Options map[string]any    `yaml:"options,omitempty" json:"options,omitempty"`
}

// Matches reports whether n belongs to the view.
func (d *ViewDef) Matches(n *Note) bool {
	if d.Folder != "" {
		prefix := strings.Trim(d.Folder, "/") + "/"
		if !strings.HasPrefix(n.Path(), prefix) {
			return false
		}
	}
	if d.Tag != "" && !n.HasTag(d.Tag) {
		return false
	}
	return true
}

type viewsFile struct {
	Views []ViewDef `yaml:"views"`
}

// Views is the YAML file holding the view definitions.
type Views struct {
	path string

	mu   sync.RWMutex
	defs []ViewDef
}

// LoadViews reads path. A missing file yields a single default view.
func LoadViews(path string) (*Views, error) {
	v := &Views{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		v.defs = []ViewDef{{ID: "default", Name: "Map"}}
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read views: %w", err)
	}

	var f viewsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse views: %w", err)
	}
	for i := range f.Views {
		if f.Views[i].ID == "" {
			return nil, fmt.Errorf("view %d has no id", i)
		}
	}
	v.defs = f.Views
	return v, nil
}

// Save writes the definitions back to disk.
func (v *Views) Save() error {
	v.mu.RLock()
	data, err := yaml.Marshal(viewsFile{Views: v.defs})
	v.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode views: %w", err)
	}

	if dir := filepath.Dir(v.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create views dir: %w", err)
		}
	}
	return os.WriteFile(v.path, data, 0o644)
}

// List returns a copy of every definition.
func (v *Views) List() []ViewDef {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]ViewDef, len(v.defs))
	copy(out, v.defs)
	return out
}

// Get returns the definition with id.
func (v *Views) Get(id string) (ViewDef, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, d := range v.defs {
		if d.ID == id {
			return d, true
		}
	}
	return ViewDef{}, false
}

// SetOption changes one option of a view.
func (v *Views) SetOption(id, key string, value any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.defs {
		if v.defs[i].ID != id {
			continue
		}
		opts := make(map[string]any, len(v.defs[i].Options)+1)
		for k, val := range v.defs[i].Options {
			opts[k] = val
		}
		if value == nil {
			delete(opts, key)
		} else {
			opts[key] = value
		}
		v.defs[i].Options = opts
		return nil
	}
	return fmt.Errorf("view %s: %w", id, ErrNotFound)
}

// Dataset is the record source of one view.
type Dataset struct {
	vault *Vault
	views *Views
	id    string
	// Active returns the path of the note "this." formulas read from.
	Active func() string
}

// NewDataset binds a view definition to the vault.
func NewDataset(v *Vault, views *Views, id string) *Dataset {
	return &Dataset{vault: v, views: views, id: id}
}

func (d *Dataset) def() ViewDef {
	def, _ := d.views.Get(d.id)
	return def
}

// Records returns the matching notes ordered by path and the displayable properties.
func (d *Dataset) Records(ctx context.Context) ([]model.Record, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	def := d.def()

	var records []model.Record
	keys := make(map[string]bool)
	for _, n := range d.vault.Notes() {
		if !def.Matches(n) {
			continue
		}
		records = append(records, n)
		for k := range n.Frontmatter() {
			keys[k] = true
		}
	}

	props := def.Order
	if len(props) == 0 {
		props = []string{"file.name"}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, "note."+k)
		}
		sort.Strings(sorted)
		props = append(props, sorted...)
	}
	return records, props, nil
}

// EvaluateCenter evaluates "this.<prop>" against the active note.
// Other values are returned unchanged.
func (d *Dataset) EvaluateCenter(_ context.Context, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	prop, ok := strings.CutPrefix(strings.TrimSpace(s), "this.")
	if !ok {
		return raw, nil
	}

	active := ""
	if d.Active != nil {
		active = d.Active()
	}
	if active == "" {
		return nil, ErrNoActiveNote
	}
	n, found := d.vault.Note(active)
	if !found {
		return nil, fmt.Errorf("active note %s: %w", active, ErrNotFound)
	}
	return n.Property("note." + prop)
}

// Options exposes the options of one view.
type Options struct {
	views *Views
	id    string
}

// NewOptions binds the options of view id.
func NewOptions(views *Views, id string) *Options {
	return &Options{views: views, id: id}
}

func (o *Options) Get(key string) any {
	def, _ := o.views.Get(o.id)
	return def.Options[key]
}

// DisplayName returns the configured label or the property id without its scope.
func (o *Options) DisplayName(prop string) string {
	def, _ := o.views.Get(o.id)
	if l, ok := def.Labels[prop]; ok && l != "" {
		return l
	}
	if _, after, ok := strings.Cut(prop, "."); ok {
		return after
	}
	return prop
}
