package api

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"notemap/pkg/version"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

//go:embed web
var webFS embed.FS

// NewServer creates and configures the HTTP server.
// shutdown is called (asynchronously) by POST /api/shutdown.
func NewServer(addr string, cfg *ConfigHandler, stats *StatsHandler, tiles *TileSetHandler, views *ViewHandler, notes *NoteHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Info Endpoints
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 3. Config
	mux.HandleFunc("/api/config", cfg.HandleConfig)

	// 4. Tile Sets
	mux.HandleFunc("GET /api/tilesets", tiles.HandleList)
	mux.HandleFunc("POST /api/tilesets", tiles.HandleSave)
	mux.HandleFunc("DELETE /api/tilesets/{id}", tiles.HandleDelete)

	// 5. Views
	mux.HandleFunc("GET /api/views", views.HandleList)
	mux.HandleFunc("GET /api/view/options", views.HandleOptionsSchema)
	mux.HandleFunc("PUT /api/view/options", views.HandleSetOptions)
	mux.HandleFunc("GET /api/view/ws", views.HandleWS)

	// 6. Notes
	mux.HandleFunc("GET /api/notes", notes.HandleGet)

	// 7. Shutdown
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Let the response flush first
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	// 8. Map page
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(fmt.Sprintf("Failed to subtree web from embedded assets: %v", err))
	}
	mux.Handle("/", http.FileServer(&spaFileSystem{root: http.FS(sub)}))

	return &http.Server{
		Addr:    addr,
		Handler: mux,
		// Upgraded websockets clear these deadlines
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
