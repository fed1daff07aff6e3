package model

import "context"

// Dataset is the pull accessor for the current record set of a view.
type Dataset interface {
	// Records returns the current ordered records and the declared displayable property ids.
	Records(ctx context.Context) (records []Record, properties []string, err error)
	// EvaluateCenter evaluates the center option, which may be a formula.
	EvaluateCenter(ctx context.Context, raw any) (any, error)
}

// Options exposes the user-editable view options.
type Options interface {
	Get(key string) any
	// DisplayName returns the label of a property id (e.g. "note.rating" -> "rating").
	DisplayName(prop string) string
}

// MenuItem is a single context-menu entry.
type MenuItem struct {
	Title  string
	Icon   string
	Action func()
}

// Workspace is the set of host actions the map view can trigger.
type Workspace interface {
	OpenRecord(path string, newTab bool)
	DeleteRecord(path string) error
	CopyToClipboard(text string)
	ShowMenu(x, y float64, items []MenuItem)
	SetViewHeight(px int)
	// Hover notifies external preview subsystems that a record is hovered.
	Hover(path string)
}
