// Command server runs the workflow core: the webhook/cron trigger
// supervisor, the REST API, and the DAG execution engine, wired
// over a single Postgres-backed store.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/ai-studio/workflow-core/internal/config"
	"github.com/ai-studio/workflow-core/internal/engine"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/executor/builtin"
	"github.com/ai-studio/workflow-core/internal/httpapi"
	"github.com/ai-studio/workflow-core/internal/liverun"
	applog "github.com/ai-studio/workflow-core/internal/logger"
	"github.com/ai-studio/workflow-core/internal/observer"
	"github.com/ai-studio/workflow-core/internal/sidecar"
	"github.com/ai-studio/workflow-core/internal/storage"
	"github.com/ai-studio/workflow-core/internal/subgraph"
	"github.com/ai-studio/workflow-core/internal/trigger"
	"github.com/ai-studio/workflow-core/pkg/models"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := applog.New(applog.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	appLogger.Info().Str("version", "1.0.0").Msg("starting workflow core")

	maybePrintMasterToken(appLogger, cfg.Sidecar.TokenSecret)

	db, err := openDB(cfg.Database)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.PingContext(context.Background()); err != nil {
		appLogger.Fatal().Err(err).Msg("database ping failed")
	}
	appLogger.Info().Int("max_conns", cfg.Database.MaxConnections).Msg("database connected")

	store := storage.NewBunStore(db)

	wsHub := observer.NewWebSocketHub(appLogger)
	events := observer.NewManager(
		observer.WithLogger(appLogger),
		observer.WithBufferSize(cfg.Observer.BufferSize),
	)
	events.Register(wsHub.Observer())
	events.Register(&observer.Observer{
		Name: "log",
		OnEvent: func(e models.Event) {
			appLogger.Debug().Str("type", string(e.Type)).Str("session_id", e.SessionID).Msg("event")
		},
	})

	sidecarClient := sidecar.NewClient(cfg.Sidecar.BaseURL, []byte(cfg.Sidecar.TokenSecret))

	registry := exec.NewRegistry()
	builtin.RegisterAll(registry)
	appLogger.Info().Int("count", len(registry.List())).Msg("registered executors")

	subgraphRunner := subgraph.NewRunner()
	eng := engine.New(registry, subgraphRunner)

	runFunc := func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}, ephemeral bool) (*models.RunResult, error) {
		g, err := store.GetGraph(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		ec := newRunContext(runID, sessionID, ephemeral, sidecarClient, store, events, appLogger)
		return eng.Run(ctx, g, inputs, ec)
	}

	triggerSupervisor := trigger.New(store, runFunc, events, appLogger, cfg.Server.WebhookPort, []byte(cfg.Sidecar.TokenSecret))
	if err := triggerSupervisor.Start(context.Background()); err != nil {
		appLogger.Error().Err(err).Msg("failed to start trigger supervisor")
	} else {
		appLogger.Info().Int("port", cfg.Server.WebhookPort).Msg("trigger supervisor started")
	}

	liveRunFunc := func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
		return runFunc(ctx, runID, sessionID, workflowID, inputs, true)
	}
	createSessionFunc := func(ctx context.Context, workflowID string) (string, error) {
		return store.CreateSession(ctx, "", "live:"+workflowID)
	}
	liveManager := liverun.New(liveRunFunc, createSessionFunc, events, appLogger)

	handlers := &httpapi.Handlers{
		Store:   store,
		Engine:  eng,
		Sidecar: sidecarClient,
		Events:  events,
		Live:    liveManager,
		Logger:  appLogger,
	}
	mux := handlers.Mux()
	mux.HandleFunc("GET /ws/events", wsHub.ServeHTTP)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		stats := db.DB.Stats()
		writeMetrics(w, stats)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.APIPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info().Str("addr", httpServer.Addr).Msg("rest api starting")
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("rest api server error")
		}
	case sig := <-shutdown:
		appLogger.Info().Str("signal", sig.String()).Msg("shutdown initiated")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		triggerSupervisor.Stop()
		appLogger.Info().Msg("trigger supervisor stopped")

		if err := httpServer.Shutdown(ctx); err != nil {
			appLogger.Error().Err(err).Msg("graceful shutdown failed")
			_ = httpServer.Close()
		}
		appLogger.Info().Msg("server stopped")
	}
}

func openDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL)))
	sqldb.SetMaxOpenConns(cfg.MaxConnections)
	sqldb.SetMaxIdleConns(cfg.MinConnections)
	sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)
	sqldb.SetConnMaxIdleTime(cfg.MaxIdleTime)
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func writeMetrics(w http.ResponseWriter, stats sql.DBStats) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"database":{"open_connections":%d,"in_use":%d,"idle":%d,"max_open_connections":%d}}`,
		stats.OpenConnections, stats.InUse, stats.Idle, stats.MaxOpenConnections)
}
