package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"notemap/internal/api"
	"notemap/pkg/apisession"
	"notemap/pkg/cache"
	"notemap/pkg/config"
	"notemap/pkg/db"
	"notemap/pkg/db/maintenance"
	"notemap/pkg/logging"
	"notemap/pkg/map/style"
	"notemap/pkg/probe"
	"notemap/pkg/request"
	"notemap/pkg/session"
	"notemap/pkg/store"
	"notemap/pkg/tracker"
	"notemap/pkg/vault"
	"notemap/pkg/version"
	"notemap/pkg/watcher"
)

const defaultConfigPath = "configs/notemap.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	// .env is optional; values already in the environment win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("notemap Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg.Map.TileSetsCSV, time.Duration(appCfg.DB.CacheTTL)); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	tr := tracker.New()
	reqClient := request.New(cache.NewSQLiteCache(st), tr)
	reqClient.Configure(request.Settings{
		Retries:   appCfg.Request.Retries,
		Timeout:   time.Duration(appCfg.Request.Timeout),
		Gap:       time.Duration(appCfg.Request.Gap),
		BaseDelay: time.Duration(appCfg.Request.Backoff.BaseDelay),
		MaxDelay:  time.Duration(appCfg.Request.Backoff.MaxDelay),
	})
	styles := style.NewResolver(reqClient, tr)
	styles.AccessToken = appCfg.Map.AccessToken
	styles.CacheDocuments = true

	// Startup Probes
	probes := []probe.Probe{
		probe.Database(st),
		probe.Vault(appCfg.Vault.Path),
	}
	if appCfg.Map.ProbeStyle != "" {
		probes = append(probes, probe.Style(reqClient, appCfg.Map.ProbeStyle))
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes, probe.DefaultTimeout)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	notes, err := vault.Open(ctx, appCfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}
	views, err := vault.LoadViews(appCfg.Vault.ViewsFile)
	if err != nil {
		return fmt.Errorf("failed to load views: %w", err)
	}
	slog.Info("Vault loaded", "path", notes.Root(), "notes", notes.Len(), "views", len(views.List()))

	cfgProv := config.NewProvider(appCfg, st)
	hub := api.NewHub()

	// Vault changes reach every open map
	watch := watcher.NewService(notes, cfgProv.WatchInterval(ctx))
	watch.Subscribe(func() { hub.RefreshAsync("") })
	go watch.Run(ctx)

	clients := apisession.New[api.ClientState](api.ClientTTL)
	go clients.Run(ctx)

	return runServer(ctx, appCfg, serverDeps{
		store:    st,
		cfg:      cfgProv,
		tracker:  tr,
		vault:    notes,
		views:    views,
		styles:   styles,
		watcher:  watch,
		sessions: session.NewManager(st),
		clients:  clients,
		hub:      hub,
	})
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

type serverDeps struct {
	store    *store.SQLiteStore
	cfg      config.Provider
	tracker  *tracker.Tracker
	vault    *vault.Vault
	views    *vault.Views
	styles   *style.Resolver
	watcher  *watcher.Service
	sessions *session.Manager
	clients  *apisession.Store[api.ClientState]
	hub      *api.Hub
}

func runServer(ctx context.Context, cfg *config.Config, d serverDeps) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewConfigHandler(d.store, d.cfg, d.hub),
		api.NewStatsHandler(d.tracker, d.sessions, d.hub, d.vault, d.watcher),
		api.NewTileSetHandler(d.store, d.cfg, d.hub),
		api.NewViewHandler(d.vault, d.views, d.styles, d.store, d.cfg, d.sessions, d.clients, d.hub),
		api.NewNoteHandler(d.vault, d.clients, d.hub),
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, d.hub, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, hub *api.Hub, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	// Websockets are hijacked and not closed by Shutdown
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
