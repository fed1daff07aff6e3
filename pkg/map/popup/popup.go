// Package popup shows a single shared marker popup with a debounced hide.
package popup

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"notemap/pkg/engine"
	"notemap/pkg/geo"
	"notemap/pkg/model"
)

const (
	// HideDelay is the grace period before a requested hide takes effect.
	HideDelay = 150 * time.Millisecond
	// MaxProperties caps the properties considered for one popup.
	MaxProperties = 20
)

// Coordinator owns the popup of one map.
// Show, Hide and Close must run on the view's dispatch goroutine.
type Coordinator struct {
	m     engine.Map
	names func(prop string) string
	post  func(func())
	delay time.Duration

	popup engine.Popup

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// New creates a coordinator. names maps property ids to labels; post schedules
// timer callbacks on the dispatch goroutine.
func New(m engine.Map, names func(string) string, post func(func())) *Coordinator {
	if names == nil {
		names = defaultName
	}
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Coordinator{m: m, names: names, post: post, delay: HideDelay}
}

func defaultName(prop string) string {
	if _, after, ok := strings.Cut(prop, "."); ok {
		return after
	}
	return prop
}

type row struct {
	label string
	value string
}

// Show displays the record's properties at p. Role properties are skipped.
// Nothing happens when no property has a displayable value.
func (c *Coordinator) Show(rec model.Record, p geo.Point, props []string, roles map[string]bool, note string) {
	rows := c.collect(rec, props, roles)
	if len(rows) == 0 {
		return
	}

	c.cancelHide()

	content, err := render(rec, rows, note)
	if err != nil {
		slog.Warn("Popup: Failed to render content", "path", rec.Path(), "error", err)
		return
	}

	if c.popup == nil {
		c.popup = c.m.NewPopup(engine.PopupOptions{
			CloseButton:  false,
			CloseOnClick: false,
			Offset:       12,
			MaxWidth:     "320px",
		})
		c.popup.OnPointer(c.cancelHide, c.Hide)
	}
	c.popup.SetLngLat(model.LngLatOf(p))
	c.popup.SetHTML(content)
	if !c.popup.IsOpen() {
		c.popup.Show()
	}
}

func (c *Coordinator) collect(rec model.Record, props []string, roles map[string]bool) []row {
	var rows []row
	considered := 0
	for _, prop := range props {
		if roles[prop] {
			continue
		}
		if considered >= MaxProperties {
			break
		}
		considered++

		v, err := rec.Property(prop)
		if err != nil || model.IsEmptyValue(v) {
			continue
		}
		s := model.StringValue(v)
		if s == "" {
			continue
		}
		rows = append(rows, row{label: c.names(prop), value: s})
	}
	return rows
}

// Hide removes the popup after the grace period unless cancelled.
func (c *Coordinator) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() {
		c.post(func() { c.hideNow(gen) })
	})
}

// Visible reports whether the popup is currently shown.
func (c *Coordinator) Visible() bool {
	return c.popup != nil && c.popup.IsOpen()
}

// Close stops the hide timer and removes the popup.
func (c *Coordinator) Close() {
	c.cancelHide()
	if c.popup != nil {
		c.popup.Remove()
		c.popup = nil
	}
}

func (c *Coordinator) cancelHide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// stopLocked stops the pending timer and invalidates callbacks already in flight.
func (c *Coordinator) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Coordinator) hideNow(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	if c.popup != nil {
		c.popup.Remove()
	}
}

func render(rec model.Record, rows []row, note string) (string, error) {
	root := element(atom.Div, "notemap-popup")

	title := element(atom.Div, "notemap-popup-title")
	link := element(atom.A, "internal-link")
	link.Attr = append(link.Attr,
		html.Attribute{Key: "data-href", Val: rec.Path()},
		html.Attribute{Key: "href", Val: "/api/notes?path=" + url.QueryEscape(rec.Path())},
	)
	link.AppendChild(text(rows[0].value))
	title.AppendChild(link)
	root.AppendChild(title)

	if len(rows) > 1 {
		list := element(atom.Div, "notemap-popup-properties")
		for _, r := range rows[1:] {
			item := element(atom.Div, "notemap-popup-property")
			label := element(atom.Div, "notemap-popup-property-label")
			label.AppendChild(text(r.label))
			value := element(atom.Div, "notemap-popup-property-value")
			value.AppendChild(text(r.value))
			item.AppendChild(label)
			item.AppendChild(value)
			list.AppendChild(item)
		}
		root.AppendChild(list)
	}

	if note != "" {
		errEl := element(atom.Div, "notemap-popup-error")
		errEl.AppendChild(text(note))
		root.AppendChild(errEl)
	}

	var b strings.Builder
	if err := html.Render(&b, root); err != nil {
		return "", err
	}
	return b.String(), nil
}

func element(a atom.Atom, class string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     []html.Attribute{{Key: "class", Val: class}},
	}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
