// Command voteflowd runs the vote processing daemon: the HTTP submission
// API, the WebSocket result feed, the worker pool, and the janitor, all
// in one process with graceful shutdown.
//
// Configuration comes from the environment (a .env file is loaded when
// present):
//
//	VOTEFLOW_ADDR          listen address            (default :8080)
//	VOTEFLOW_DATABASE_URL  Postgres DSN; empty runs the in-memory store
//	VOTEFLOW_CONCURRENCY   worker pool size          (default 5)
//	VOTEFLOW_LOG_LEVEL     debug|info|warn|error     (default info)
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/api"
	"github.com/voteflow/voteflow/engine"
	"github.com/voteflow/voteflow/janitor"
	"github.com/voteflow/voteflow/notify"
	"github.com/voteflow/voteflow/store"
	bunstore "github.com/voteflow/voteflow/store/bun"
	"github.com/voteflow/voteflow/store/memory"
)

func main() {
	if err := run(); err != nil {
		slog.Error("voteflowd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	logger := newLogger(envOr("VOTEFLOW_LOG_LEVEL", "info"))
	slog.SetDefault(logger)

	addr := envOr("VOTEFLOW_ADDR", ":8080")
	concurrency := envInt("VOTEFLOW_CONCURRENCY", 5)

	ctx := context.Background()

	st, closeStore, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	p, err := voteflow.New(
		voteflow.WithStore(st),
		voteflow.WithLogger(logger),
		voteflow.WithConcurrency(concurrency),
	)
	if err != nil {
		return err
	}

	broker := notify.NewBroker(logger)

	eng, err := engine.Build(p,
		engine.WithNotifier(broker),
		engine.WithJanitorTasks(
			janitor.PurgeJobsTask(st, "0 3 * * *", 7*24*time.Hour),
			janitor.PurgeFailuresTask(st, "30 3 * * *", 30*24*time.Hour),
		),
	)
	if err != nil {
		return err
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	ws := notify.NewWSServer(broker, logger)
	srv := api.NewServer(eng.Votes(), st,
		api.WithWebSocket(ws),
		api.WithLogger(logger),
	)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	// signal.Notify requires the channel to be buffered.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case serveErr := <-errCh:
		logger.Error("http server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), p.Config().ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine stop error", "error", err)
	}
	logger.Info("voteflowd stopped")
	return nil
}

// openStore picks the backend: Postgres via bun when a DSN is configured,
// otherwise the in-memory store for local development.
func openStore(ctx context.Context, logger *slog.Logger) (store.Store, func(), error) {
	dsn := os.Getenv("VOTEFLOW_DATABASE_URL")
	if dsn == "" {
		logger.Warn("no VOTEFLOW_DATABASE_URL set, using in-memory store")
		return memory.New(), func() {}, nil
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	st := bunstore.New(db, bunstore.WithLogger(logger))
	if err := st.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("connected to postgres")
	return st, func() { _ = db.Close() }, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
