package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"notemap/pkg/apisession"
	"notemap/pkg/config"
	"notemap/pkg/coords"
	"notemap/pkg/engine"
	"notemap/pkg/engine/remote"
	"notemap/pkg/logging"
	"notemap/pkg/map/markers"
	"notemap/pkg/model"
	"notemap/pkg/session"
	"notemap/pkg/store"
	"notemap/pkg/vault"
	"notemap/pkg/view"
)

// closeTimeout bounds the camera capture when a connection ends.
const closeTimeout = 5 * time.Second

// ViewHandler serves the view definitions and the map websocket.
type ViewHandler struct {
	vault    *vault.Vault
	views    *vault.Views
	styles   view.StyleResolver
	tileSets store.TileSetStore
	cfg      config.Provider
	sessions *session.Manager
	clients  *apisession.Store[ClientState]
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewViewHandler creates a new ViewHandler.
func NewViewHandler(v *vault.Vault, views *vault.Views, styles view.StyleResolver, ts store.TileSetStore, cfg config.Provider, sessions *session.Manager, clients *apisession.Store[ClientState], hub *Hub) *ViewHandler {
	return &ViewHandler{
		vault:    v,
		views:    views,
		styles:   styles,
		tileSets: ts,
		cfg:      cfg,
		sessions: sessions,
		clients:  clients,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// ViewSummary is a view definition with its number of open connections.
type ViewSummary struct {
	vault.ViewDef
	Sessions int `json:"sessions"`
}

// HandleList returns every view definition.
// GET /api/views
func (h *ViewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	defs := h.views.List()
	out := make([]ViewSummary, len(defs))
	for i, d := range defs {
		out[i] = ViewSummary{ViewDef: d, Sessions: h.sessions.Count(d.ID)}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleOptionsSchema describes the editable view options.
// GET /api/view/options
func (h *ViewHandler) HandleOptionsSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.OptionsSchema())
}

// HandleSetOptions changes options of a view; null removes an option.
// PUT /api/view/options?view=<id>
func (h *ViewHandler) HandleSetOptions(w http.ResponseWriter, r *http.Request) {
	id := viewParam(r)
	if _, ok := h.views.Get(id); !ok {
		http.Error(w, "view not found", http.StatusNotFound)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	known := make(map[string]bool)
	for _, o := range view.OptionsSchema() {
		known[o.Key] = true
	}
	for key := range body {
		if !known[key] {
			http.Error(w, "unknown option "+key, http.StatusBadRequest)
			return
		}
	}

	for key, val := range body {
		if err := h.views.SetOption(id, key, val); err != nil {
			slog.Error("Views: SetOption failed", "view", id, "key", key, "error", err)
			http.Error(w, "failed to set option", http.StatusInternalServerError)
			return
		}
	}
	if err := h.views.Save(); err != nil {
		slog.Error("Views: Save failed", "error", err)
		http.Error(w, "failed to save views", http.StatusInternalServerError)
		return
	}

	slog.Info("Views: Options changed", "view", id, "keys", len(body))
	h.hub.RefreshAsync(id)
	def, _ := h.views.Get(id)
	writeJSON(w, http.StatusOK, def)
}

func viewParam(r *http.Request) string {
	if id := r.URL.Query().Get("view"); id != "" {
		return id
	}
	return "default"
}

// HandleWS drives one browser map over a websocket until it disconnects.
// GET /api/view/ws?view=<id>&client=<client id>
func (h *ViewHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	viewID := viewParam(r)
	if _, ok := h.views.Get(viewID); !ok {
		http.Error(w, "view not found", http.StatusNotFound)
		return
	}
	clientID := r.URL.Query().Get("client")

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("View: Websocket upgrade failed", "error", err)
		return
	}
	conn := newWSConn(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := h.sessions.Open(viewID)
	logger := slog.With("session", sess.ID, "view", viewID)
	logger.Info("View: Connected")

	// 1. Collaborators
	ws := newSocketWorkspace(conn, h.vault, func(string) { h.hub.RefreshAsync("") })
	ds := vault.NewDataset(h.vault, h.views, viewID)
	ds.Active = func() string {
		st, _ := h.clients.Get(clientID)
		return st.ActiveNote
	}

	var (
		ctrl *view.Controller
		m    *remote.Map
	)
	factory := func(opts engine.Options) (engine.Map, error) {
		rm, err := remote.New(conn, opts)
		if err != nil {
			return nil, err
		}
		rm.OnMessage(func(msgType string, data json.RawMessage) {
			logging.Trace(logger, "View: Browser message", "type", msgType)
			h.handleMessage(ctx, logger, ctrl, ws, clientID, msgType, data)
		})
		m = rm
		return rm, nil
	}

	ctrl, err = view.New(view.Deps{
		Dataset:   ds,
		Options:   vault.NewOptions(h.views, viewID),
		Workspace: ws,
		Engine:    factory,
		Styles:    h.styles,
		TileSets:  activeFirst{store: h.tileSets, cfg: h.cfg},
		Images:    markers.NewCache(h.cfg.MarkerCacheLimit(ctx)),
		Coords:    coords.Resolver{AllowZero: h.cfg.AllowZeroCoordinates(ctx)},
		Theme:     ThemeFor(h.cfg.Theme(ctx)),
	})
	if err != nil {
		logger.Error("View: Controller setup failed", "error", err)
		h.sessions.Close(ctx, sess.ID, model.CameraState{})
		return
	}

	// 2. Restore the camera of the previous connection, then draw
	if cs, ok := h.sessions.Restore(ctx, viewID); ok {
		_ = ctrl.SetState(ctx, cs)
	}
	if err := ctrl.OnDataUpdated(ctx); err != nil {
		logger.Warn("View: Initial update failed", "error", err)
	}
	if m == nil {
		ctrl.Close()
		h.sessions.Close(ctx, sess.ID, model.CameraState{})
		return
	}

	h.hub.add(&liveView{sessionID: sess.ID, viewID: viewID, clientID: clientID, ctrl: ctrl, cancel: cancel})

	// 3. Serve until the browser goes away
	err = m.Serve(ctx)
	h.hub.remove(sess.ID)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	cs, stateErr := ctrl.State(closeCtx)
	if stateErr != nil {
		logger.Debug("View: Camera capture failed", "error", stateErr)
	}
	ctrl.Close()
	h.sessions.Close(closeCtx, sess.ID, cs)

	if unexpectedClose(err) {
		logger.Warn("View: Connection ended", "error", err)
		return
	}
	logger.Info("View: Disconnected")
}

func unexpectedClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code != websocket.CloseNormalClosure && ce.Code != websocket.CloseGoingAway
	}
	return true
}

// handleMessage handles browser messages outside the engine protocol. It runs on
// the view's dispatcher, so controller calls are moved off it.
func (h *ViewHandler) handleMessage(ctx context.Context, logger *slog.Logger, ctrl *view.Controller, ws *socketWorkspace, clientID, msgType string, data json.RawMessage) {
	switch msgType {
	case "menu":
		ws.choose(data)
	case "resize":
		go func() {
			if err := ctrl.OnResize(ctx); err != nil {
				logger.Debug("View: Resize failed", "error", err)
			}
		}()
	case "active":
		var msg struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || clientID == "" {
			return
		}
		SetActiveNote(h.clients, h.hub, clientID, msg.Path)
	default:
		logger.Debug("View: Unknown browser message", "type", msgType)
	}
}
