package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"notemap/pkg/apisession"
	"notemap/pkg/vault"
)

// ClientIDHeader identifies a browser across requests and its view connections.
const ClientIDHeader = "X-Client-ID"

// ClientTTL is how long an idle client's state is kept.
const ClientTTL = 24 * time.Hour

// ClientState is the per-browser state.
type ClientState struct {
	// ActiveNote is the note "this." formulas of the client's views read from.
	ActiveNote string
}

// NoteHandler serves raw notes and tracks which note each client has open.
type NoteHandler struct {
	vault   *vault.Vault
	clients *apisession.Store[ClientState]
	hub     *Hub
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(v *vault.Vault, clients *apisession.Store[ClientState], hub *Hub) *NoteHandler {
	return &NoteHandler{vault: v, clients: clients, hub: hub}
}

// HandleGet returns the markdown of a note. With a client id, the note becomes
// that client's active note.
// GET /api/notes?path=...
func (h *NoteHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}

	data, err := h.vault.ReadRaw(p)
	if errors.Is(err, vault.ErrNotFound) {
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Notes: Read failed", "path", p, "error", err)
		http.Error(w, "failed to read note", http.StatusInternalServerError)
		return
	}

	if id := r.Header.Get(ClientIDHeader); id != "" {
		SetActiveNote(h.clients, h.hub, id, p)
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		slog.Debug("Notes: Write failed", "error", err)
	}
}

// SetActiveNote records the client's active note and refreshes its views when it changed.
func SetActiveNote(clients *apisession.Store[ClientState], hub *Hub, clientID, notePath string) {
	prev, _ := clients.Get(clientID)
	if prev.ActiveNote == notePath {
		return
	}
	clients.Update(clientID, func(st *ClientState) { st.ActiveNote = notePath })
	hub.RefreshClientAsync(clientID)
}
