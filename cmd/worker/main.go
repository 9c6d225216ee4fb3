// Command worker consumes the notification queue without serving HTTP.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/config"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/database"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/logging"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	stdout := logging.Setup(cfg.LogLevel)

	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	var pgLogHandler *logging.PGHandler
	if cfg.PersistErrors {
		pgLogHandler = logging.NewPGHandler(database.DB, 5*time.Second)
		slog.SetDefault(slog.New(logging.NewMultiHandler(stdout, pgLogHandler)))
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		}
	}

	rt, err := worker.New(database.DB, cfg, slog.Default())
	if err != nil {
		slog.Error("worker setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		slog.Error("worker stopped with error", "error", err)
	}

	if pgLogHandler != nil {
		pgLogHandler.Stop()
	}
	sentry.Flush(2 * time.Second)
	if err := database.Close(database.DB); err != nil {
		slog.Error("database close error", "error", err)
	}
}
