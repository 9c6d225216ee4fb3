package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

const (
	defaultConsumer      = "notifications"
	defaultPollInterval  = 2 * time.Second
	defaultLeaseTTL      = 2 * time.Minute
	defaultBatchSize     = 10
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

// HandlerFunc processes the JSON payload of one command.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Config controls the worker loop.
type Config struct {
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	// RetryJitter is the randomization factor applied to retry delays.
	RetryJitter float64
}

// DefaultRetryJitter matches the default randomization of exponential backoff.
const DefaultRetryJitter = backoff.DefaultRandomizationFactor

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = defaultRetryMaxDelay
		if c.RetryMaxDelay < c.RetryBackoff {
			c.RetryMaxDelay = c.RetryBackoff
		}
	}
	if c.RetryJitter < 0 || c.RetryJitter >= 1 {
		c.RetryJitter = 0
	}
	return c
}

// FailureFunc is called whenever a command attempt fails.
type FailureFunc func(cmd models.QueuedCommand, err error, dead bool)

// Worker leases commands from a Store and dispatches them to handlers by type.
type Worker struct {
	store     *Store
	handlers  map[string]HandlerFunc
	cfg       Config
	logger    *slog.Logger
	owner     string
	now       func() time.Time
	onFailure FailureFunc
}

func New(store *Store, handlers map[string]HandlerFunc, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	copied := make(map[string]HandlerFunc, len(handlers))
	for name, h := range handlers {
		copied[name] = h
	}
	cfg = cfg.normalized()
	return &Worker{
		store:    store,
		handlers: copied,
		cfg:      cfg,
		logger:   logger,
		owner:    leaseOwner(cfg.Consumer),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// leaseOwner names this worker instance in lease_owner. Replicas share a
// consumer name, so host, pid and a random suffix keep leases apart.
func leaseOwner(consumer string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	// lease_owner holds 100 characters.
	return fmt.Sprintf("%s@%s/%d/%s", clip(consumer, 40), clip(host, 32), os.Getpid(), uuid.NewString()[:8])
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Owner returns the lease owner this worker writes to leased commands.
func (w *Worker) Owner() string {
	return w.owner
}

// OnFailure registers a hook for failed attempts.
func (w *Worker) OnFailure(fn FailureFunc) {
	w.onFailure = fn
}

// Config returns the normalized configuration in use.
func (w *Worker) Config() Config {
	return w.cfg
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("queue worker started",
		"consumer", w.cfg.Consumer,
		"owner", w.owner,
		"poll_interval", w.cfg.PollInterval.String(),
		"batch_size", w.cfg.BatchSize,
	)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			n, err := w.ProcessOnce(ctx)
			if err != nil && ctx.Err() == nil {
				w.logger.Warn("queue poll failed", "error", err)
			}
			// Drain full batches without waiting for the next tick.
			if err != nil || n < w.cfg.BatchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			w.logger.Info("queue worker stopped", "consumer", w.cfg.Consumer)
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce leases one batch and handles every command in it. It returns
// the number of commands leased.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	leased, err := w.store.Lease(ctx, w.owner, w.cfg.BatchSize, w.now(), w.cfg.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("lease commands: %w", err)
	}
	for i, cmd := range leased {
		// Later commands in the batch waited on earlier ones; renew before
		// starting so a full TTL is left for the handler.
		if i > 0 {
			if err := w.store.Extend(ctx, cmd, w.now(), w.cfg.LeaseTTL); err != nil {
				w.logger.Warn("lease lost before handling", "command_id", cmd.ID, "error", err)
				continue
			}
		}
		w.handle(ctx, cmd)
	}
	return len(leased), nil
}

func (w *Worker) handle(ctx context.Context, cmd models.QueuedCommand) {
	log := w.logger.With("command_id", cmd.ID, "command_type", cmd.Type, "attempt", cmd.Attempts)

	handler, ok := w.handlers[cmd.Type]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Type)
		log.Error("dead-lettering command", "error", err)
		w.fail(ctx, cmd, err, true)
		return
	}

	err := w.invoke(ctx, handler, cmd.Payload)
	if err == nil {
		if err := w.store.Complete(ctx, cmd, w.now()); err != nil {
			log.Warn("complete command failed", "error", err)
		}
		return
	}

	dead := IsPermanent(err) || cmd.Attempts >= w.cfg.MaxAttempts
	if dead {
		log.Error("dead-lettering command", "error", err)
	} else {
		log.Warn("command failed, retrying", "error", err)
	}
	w.fail(ctx, cmd, err, dead)
}

func (w *Worker) invoke(ctx context.Context, handler HandlerFunc, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func (w *Worker) fail(ctx context.Context, cmd models.QueuedCommand, cause error, dead bool) {
	if w.onFailure != nil {
		w.onFailure(cmd, cause, dead)
	}

	var err error
	if dead {
		err = w.store.Dead(ctx, cmd, w.now(), cause)
	} else {
		now := w.now()
		err = w.store.Retry(ctx, cmd, now, now.Add(w.retryDelay(cmd.Attempts)), cause)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("record command failure", "command_id", cmd.ID, "error", err)
	}
}

// retryDelay returns the wait before the next attempt after attempt n failed.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryBackoff
	b.MaxInterval = w.cfg.RetryMaxDelay
	b.RandomizationFactor = w.cfg.RetryJitter
	b.Multiplier = backoff.DefaultMultiplier
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay <= 0 || delay > w.cfg.RetryMaxDelay {
		delay = w.cfg.RetryMaxDelay
	}
	return delay
}
