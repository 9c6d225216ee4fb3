// Package worker assembles the notification channels, the dispatcher and
// the queue consumer that delivers submission notifications.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/config"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification/email"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification/webhook"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"
)

type Runtime struct {
	Registry    *notification.Registry
	Dispatcher  *notification.Dispatcher
	Worker      *queue.Worker
	Store       *queue.Store
	Submissions *services.SubmissionService
	Accounts    *services.AccountSettingsService
}

// BuildRegistry registers every built-in channel.
func BuildRegistry(cfg *config.Config, accounts email.SettingsProvider, logger *slog.Logger, emailOpts ...email.Option) (*notification.Registry, error) {
	mailer := email.New(accounts, email.Config{
		DefaultFromAddress: cfg.MailFromAddress,
		DefaultFromName:    cfg.MailFromName,
		Timeout:            cfg.SMTPTimeout,
	}, logger, emailOpts...)
	hook := webhook.New(webhook.Config{
		Timeout:             cfg.WebhookTimeout,
		AllowPrivateTargets: cfg.WebhookAllowPrivate,
	}, logger)

	registry, err := notification.NewRegistry(mailer, hook)
	if err != nil {
		return nil, fmt.Errorf("build channel registry: %w", err)
	}
	return registry, nil
}

// QueueConfig maps the WORKER_* settings onto the queue worker.
func QueueConfig(cfg *config.Config) queue.Config {
	return queue.Config{
		Consumer:      cfg.WorkerConsumer,
		PollInterval:  cfg.WorkerPollInterval,
		LeaseTTL:      cfg.WorkerLeaseTTL,
		BatchSize:     cfg.WorkerBatchSize,
		MaxAttempts:   cfg.WorkerMaxAttempts,
		RetryBackoff:  cfg.WorkerRetryBackoff,
		RetryMaxDelay: cfg.WorkerRetryMaxDelay,
		RetryJitter:   queue.DefaultRetryJitter,
	}
}

func New(db *gorm.DB, cfg *config.Config, logger *slog.Logger, emailOpts ...email.Option) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := queue.NewStore(db)
	accounts := services.NewAccountSettingsService(db, cfg.AccountSettingsMode)
	submissions := services.NewSubmissionService(db, store)

	registry, err := BuildRegistry(cfg, accounts, logger, emailOpts...)
	if err != nil {
		return nil, err
	}
	dispatcher := notification.NewDispatcher(submissions, registry, logger)

	w := queue.New(store, map[string]queue.HandlerFunc{
		notification.SendSubmissionNotificationType: dispatcher.HandlePayload,
	}, QueueConfig(cfg), logger)
	w.OnFailure(SentryFailureHook())

	return &Runtime{
		Registry:    registry,
		Dispatcher:  dispatcher,
		Worker:      w,
		Store:       store,
		Submissions: submissions,
		Accounts:    accounts,
	}, nil
}

// Run consumes the queue until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	return r.Worker.Run(ctx)
}

// SentryFailureHook reports dead-lettered commands to Sentry. Retries are
// only logged.
func SentryFailureHook() queue.FailureFunc {
	return func(cmd models.QueuedCommand, err error, dead bool) {
		if !dead {
			return
		}
		hub := sentry.CurrentHub().Clone()
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("command_id", strconv.FormatUint(uint64(cmd.ID), 10))
			scope.SetTag("command_type", cmd.Type)
			scope.SetTag("attempts", strconv.Itoa(cmd.Attempts))
			hub.CaptureException(err)
		})
	}
}
