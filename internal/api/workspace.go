package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"notemap/pkg/model"
)

const writeWait = 10 * time.Second

// wsConn serializes writes on a websocket shared by the engine bridge and the workspace.
type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{conn: c}
}

func (c *wsConn) WriteJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// ReadJSON is only called by the engine's Serve loop.
func (c *wsConn) ReadJSON(v any) error {
	return c.conn.ReadJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// jsonWriter is the write side of wsConn.
type jsonWriter interface {
	WriteJSON(v any) error
}

// RecordDeleter removes a record from the note store.
type RecordDeleter interface {
	Delete(path string) error
}

type menuEntry struct {
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
}

// socketWorkspace implements model.Workspace by forwarding host actions to the browser
// as "workspace.*" commands.
type socketWorkspace struct {
	out       jsonWriter
	records   RecordDeleter
	onDeleted func(path string)

	mu   sync.Mutex
	menu []model.MenuItem
}

var _ model.Workspace = (*socketWorkspace)(nil)

func newSocketWorkspace(out jsonWriter, records RecordDeleter, onDeleted func(string)) *socketWorkspace {
	return &socketWorkspace{out: out, records: records, onDeleted: onDeleted}
}

func (w *socketWorkspace) send(op string, args any) {
	if err := w.out.WriteJSON(map[string]any{"op": op, "args": args}); err != nil {
		slog.Debug("Workspace: Send failed", "op", op, "error", err)
	}
}

func (w *socketWorkspace) OpenRecord(path string, newTab bool) {
	w.send("workspace.open", map[string]any{"path": path, "newTab": newTab})
}

func (w *socketWorkspace) DeleteRecord(path string) error {
	if w.records == nil {
		return errors.New("workspace: records are read-only")
	}
	if err := w.records.Delete(path); err != nil {
		return err
	}
	if w.onDeleted != nil {
		w.onDeleted(path)
	}
	return nil
}

func (w *socketWorkspace) CopyToClipboard(text string) {
	w.send("workspace.copy", map[string]any{"text": text})
}

// ShowMenu opens a context menu in the browser. The browser answers with a
// "menu" message carrying the chosen index.
func (w *socketWorkspace) ShowMenu(x, y float64, items []model.MenuItem) {
	entries := make([]menuEntry, len(items))
	for i, it := range items {
		entries[i] = menuEntry{Title: it.Title, Icon: it.Icon}
	}
	w.mu.Lock()
	w.menu = items
	w.mu.Unlock()
	w.send("workspace.menu", map[string]any{"x": x, "y": y, "items": entries})
}

func (w *socketWorkspace) SetViewHeight(px int) {
	w.send("workspace.height", map[string]any{"px": px})
}

func (w *socketWorkspace) Hover(path string) {
	w.send("workspace.hover", map[string]any{"path": path})
}

// choose runs the action of the picked menu entry. The menu is single-use.
func (w *socketWorkspace) choose(data json.RawMessage) {
	var pick struct {
		Index int `json:"index"`
	}
	if err := json.Unmarshal(data, &pick); err != nil {
		slog.Debug("Workspace: Malformed menu reply", "error", err)
		return
	}

	w.mu.Lock()
	items := w.menu
	w.menu = nil
	w.mu.Unlock()

	if pick.Index < 0 || pick.Index >= len(items) {
		return
	}
	if fn := items[pick.Index].Action; fn != nil {
		fn()
	}
}
