package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/testutil"
	"gorm.io/gorm"
)

type pingCommand struct {
	Value int `json:"value"`
}

func (pingCommand) CommandType() string { return "test.ping" }

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	return NewStore(db), db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnqueueStoresPendingCommand(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	row, err := store.Enqueue(ctx, nil, pingCommand{Value: 7})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	got, err := store.Get(ctx, row.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Type != "test.ping" {
		t.Fatalf("type = %q, want %q", got.Type, "test.ping")
	}
	if got.Status != models.CommandStatusPending {
		t.Fatalf("status = %q, want %q", got.Status, models.CommandStatusPending)
	}
	var payload pingCommand
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Value != 7 {
		t.Fatalf("payload value = %d, want 7", payload.Value)
	}
}

func TestEnqueueRollsBackWithTransaction(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := store.Enqueue(ctx, tx, pingCommand{Value: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction err = %v, want %v", err, boom)
	}
	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[models.CommandStatusPending] != 0 {
		t.Fatalf("pending = %d, want 0", counts[models.CommandStatusPending])
	}
}

func TestLeaseClaimsDueCommandsOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.Enqueue(ctx, nil, pingCommand{Value: i}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	now := time.Now().UTC().Add(time.Second)

	first, err := store.Lease(ctx, "a", 2, now, time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("leased = %d, want 2", len(first))
	}
	for _, cmd := range first {
		if cmd.Status != models.CommandStatusLeased || cmd.LeaseOwner != "a" || cmd.Attempts != 1 {
			t.Fatalf("leased command = %+v", cmd)
		}
	}

	second, err := store.Lease(ctx, "b", 10, now, time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second lease = %d, want 1", len(second))
	}
}

func TestLeaseReclaimsExpiredLease(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Enqueue(ctx, nil, pingCommand{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	now := time.Now().UTC().Add(time.Second)

	if _, err := store.Lease(ctx, "a", 1, now, time.Minute); err != nil {
		t.Fatalf("Lease: %v", err)
	}
	leased, err := store.Lease(ctx, "b", 1, now.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(leased) != 1 {
		t.Fatalf("reclaimed = %d, want 1", len(leased))
	}
	if leased[0].LeaseOwner != "b" || leased[0].Attempts != 2 {
		t.Fatalf("reclaimed command owner=%q attempts=%d", leased[0].LeaseOwner, leased[0].Attempts)
	}

	// The original owner lost the lease and can no longer ack.
	stale := leased[0]
	stale.LeaseOwner = "a"
	stale.Attempts = 1
	if err := store.Complete(ctx, stale, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Complete by stale owner err = %v, want ErrNotFound", err)
	}
}

func TestRetrySchedulesFutureAttempt(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	row, _ := store.Enqueue(ctx, nil, pingCommand{})
	now := time.Now().UTC().Add(time.Second)
	first, err := store.Lease(ctx, "a", 1, now, time.Minute)
	if err != nil || len(first) != 1 {
		t.Fatalf("Lease = %d, %v", len(first), err)
	}

	failedAt := now.Add(30 * time.Second)
	if err := store.Retry(ctx, first[0], failedAt, now.Add(time.Hour), errors.New("smtp down")); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	leased, err := store.Lease(ctx, "a", 1, now.Add(time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(leased) != 0 {
		t.Fatalf("leased before retry time = %d, want 0", len(leased))
	}
	got, _ := store.Get(ctx, row.ID)
	if got.LastError != "smtp down" {
		t.Fatalf("last error = %q, want %q", got.LastError, "smtp down")
	}
	if d := got.UpdatedAt.Sub(failedAt); d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, failedAt)
	}
}

func TestDeadAndRequeue(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	row, _ := store.Enqueue(ctx, nil, pingCommand{})
	now := time.Now().UTC().Add(time.Second)
	leased, err := store.Lease(ctx, "a", 1, now, time.Minute)
	if err != nil || len(leased) != 1 {
		t.Fatalf("Lease = %d, %v", len(leased), err)
	}
	if err := store.Dead(ctx, leased[0], now, errors.New("bad payload")); err != nil {
		t.Fatalf("Dead: %v", err)
	}

	dead, total, err := store.List(ctx, models.CommandStatusDead, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(dead) != 1 {
		t.Fatalf("dead total=%d len=%d, want 1", total, len(dead))
	}

	if err := store.Requeue(ctx, row.ID, now); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	got, _ := store.Get(ctx, row.ID)
	if got.Status != models.CommandStatusPending || got.Attempts != 0 {
		t.Fatalf("requeued status=%q attempts=%d", got.Status, got.Attempts)
	}
	if err := store.Requeue(ctx, row.ID, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Requeue pending err = %v, want ErrNotFound", err)
	}
}

func TestStaleLeaseWithSameOwnerCannotAck(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	row, _ := store.Enqueue(ctx, nil, pingCommand{})
	now := time.Now().UTC().Add(time.Second)

	first, err := store.Lease(ctx, "notifications", 1, now, time.Minute)
	if err != nil || len(first) != 1 {
		t.Fatalf("Lease = %d, %v", len(first), err)
	}
	second, err := store.Lease(ctx, "notifications", 1, now.Add(2*time.Minute), time.Minute)
	if err != nil || len(second) != 1 {
		t.Fatalf("re-lease = %d, %v", len(second), err)
	}

	later := now.Add(3 * time.Minute)
	if err := store.Retry(ctx, first[0], later, later.Add(time.Minute), errors.New("late")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Retry by expired lease err = %v, want ErrNotFound", err)
	}
	if err := store.Dead(ctx, first[0], later, errors.New("late")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Dead by expired lease err = %v, want ErrNotFound", err)
	}
	if err := store.Complete(ctx, second[0], later); err != nil {
		t.Fatalf("Complete by current lease: %v", err)
	}

	got, _ := store.Get(ctx, row.ID)
	if got.Status != models.CommandStatusSucceeded {
		t.Fatalf("status = %q, want %q", got.Status, models.CommandStatusSucceeded)
	}
	again, err := store.Lease(ctx, "notifications", 1, later.Add(time.Hour), time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("completed command leased again = %d, want 0", len(again))
	}
}

func TestExtendRenewsOnlyLiveLease(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	store.Enqueue(ctx, nil, pingCommand{})
	now := time.Now().UTC().Add(time.Second)

	leased, err := store.Lease(ctx, "a", 1, now, time.Minute)
	if err != nil || len(leased) != 1 {
		t.Fatalf("Lease = %d, %v", len(leased), err)
	}
	if err := store.Extend(ctx, leased[0], now.Add(50*time.Second), time.Minute); err != nil {
		t.Fatalf("Extend live lease: %v", err)
	}
	// Renewed to now+110s, so nobody can take it at now+90s.
	stolen, err := store.Lease(ctx, "b", 1, now.Add(90*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(stolen) != 0 {
		t.Fatalf("renewed lease taken over = %d, want 0", len(stolen))
	}

	if err := store.Extend(ctx, leased[0], now.Add(5*time.Minute), time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Extend expired lease err = %v, want ErrNotFound", err)
	}
}

func TestErrorTextTruncatesOnRuneBoundary(t *testing.T) {
	msg := strings.Repeat("€", 1000)
	got := errorText(errors.New(msg))
	if !utf8.ValidString(got) {
		t.Fatal("errorText returned invalid UTF-8")
	}
	if len(got) != 1998 {
		t.Fatalf("len = %d, want 1998", len(got))
	}
	if short := errorText(errors.New("smtp down")); short != "smtp down" {
		t.Fatalf("errorText = %q, want unchanged", short)
	}
}

func TestWorkersSharingConsumerGetDistinctOwners(t *testing.T) {
	a := New(nil, nil, Config{}, quietLogger())
	b := New(nil, nil, Config{}, quietLogger())
	if a.Owner() == b.Owner() {
		t.Fatalf("owners both %q, want distinct", a.Owner())
	}
	if !strings.HasPrefix(a.Owner(), defaultConsumer+"@") {
		t.Fatalf("owner = %q, want %q prefix", a.Owner(), defaultConsumer+"@")
	}
	if len(a.Owner()) > 100 {
		t.Fatalf("owner length = %d, exceeds lease_owner column", len(a.Owner()))
	}
}

func TestPermanentMarker(t *testing.T) {
	base := errors.New("invalid")
	err := fmt.Errorf("handle: %w", Permanent(base))
	if !IsPermanent(err) {
		t.Fatal("IsPermanent = false, want true")
	}
	if !errors.Is(err, base) {
		t.Fatal("errors.Is lost the cause")
	}
	if IsPermanent(base) {
		t.Fatal("IsPermanent(base) = true, want false")
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}

func TestWorkerCompletesHandledCommand(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	row, _ := store.Enqueue(ctx, nil, pingCommand{Value: 42})

	var seen int
	w := New(store, map[string]HandlerFunc{
		"test.ping": func(_ context.Context, payload []byte) error {
			var cmd pingCommand
			if err := json.Unmarshal(payload, &cmd); err != nil {
				return err
			}
			seen = cmd.Value
			return nil
		},
	}, Config{Consumer: "test"}, quietLogger())
	w.now = func() time.Time { return time.Now().UTC().Add(time.Second) }

	n, err := w.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	if n != 1 || seen != 42 {
		t.Fatalf("processed=%d seen=%d, want 1 and 42", n, seen)
	}
	got, _ := store.Get(ctx, row.ID)
	if got.Status != models.CommandStatusSucceeded || got.ProcessedAt == nil {
		t.Fatalf("status = %q processed_at = %v", got.Status, got.ProcessedAt)
	}
}

func TestWorkerRetriesThenDeadLetters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	row, _ := store.Enqueue(ctx, nil, pingCommand{})

	var failures []bool
	w := New(store, map[string]HandlerFunc{
		"test.ping": func(context.Context, []byte) error { return errors.New("unavailable") },
	}, Config{Consumer: "test", MaxAttempts: 2, RetryBackoff: time.Second, RetryMaxDelay: time.Second}, quietLogger())
	w.OnFailure(func(_ models.QueuedCommand, _ error, dead bool) { failures = append(failures, dead) })

	clock := time.Now().UTC().Add(time.Second)
	w.now = func() time.Time { return clock }

	if _, err := w.ProcessOnce(ctx); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	got, _ := store.Get(ctx, row.ID)
	if got.Status != models.CommandStatusPending {
		t.Fatalf("status after first failure = %q, want pending", got.Status)
	}

	clock = clock.Add(time.Minute)
	if _, err := w.ProcessOnce(ctx); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	got, _ = store.Get(ctx, row.ID)
	if got.Status != models.CommandStatusDead || got.Attempts != 2 {
		t.Fatalf("status=%q attempts=%d, want dead after 2", got.Status, got.Attempts)
	}
	if len(failures) != 2 || failures[0] || !failures[1] {
		t.Fatalf("failures = %v, want [false true]", failures)
	}
}

func TestWorkerDeadLettersPermanentAndUnknown(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	bad, _ := store.Enqueue(ctx, nil, pingCommand{})
	unknown, _ := store.Enqueue(ctx, nil, otherCommand{})

	w := New(store, map[string]HandlerFunc{
		"test.ping": func(context.Context, []byte) error { return Permanent(errors.New("malformed")) },
	}, Config{Consumer: "test"}, quietLogger())
	w.now = func() time.Time { return time.Now().UTC().Add(time.Second) }

	if _, err := w.ProcessOnce(ctx); err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	for _, id := range []uint{bad.ID, unknown.ID} {
		got, _ := store.Get(ctx, id)
		if got.Status != models.CommandStatusDead {
			t.Fatalf("command %d status = %q, want dead", id, got.Status)
		}
	}
}

type otherCommand struct{}

func (otherCommand) CommandType() string { return "test.other" }

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	w := New(nil, nil, Config{RetryBackoff: time.Second, RetryMaxDelay: 4 * time.Second}, quietLogger())

	if got := w.retryDelay(1); got != time.Second {
		t.Fatalf("retryDelay(1) = %v, want 1s", got)
	}
	if got := w.retryDelay(2); got != 1500*time.Millisecond {
		t.Fatalf("retryDelay(2) = %v, want 1.5s", got)
	}
	if got := w.retryDelay(20); got != 4*time.Second {
		t.Fatalf("retryDelay(20) = %v, want 4s", got)
	}
}

func TestConfigNormalizedDefaults(t *testing.T) {
	cfg := Config{}.normalized()
	if cfg.Consumer != defaultConsumer || cfg.BatchSize != defaultBatchSize || cfg.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("normalized = %+v", cfg)
	}
	if cfg.RetryMaxDelay < cfg.RetryBackoff {
		t.Fatalf("max delay %v below backoff %v", cfg.RetryMaxDelay, cfg.RetryBackoff)
	}
}
