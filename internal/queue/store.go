// Package queue implements a durable at-least-once command queue on top of
// the application database. Commands are leased by one worker at a time;
// an expired lease makes the command visible again.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Command is a message that can be enqueued.
type Command interface {
	CommandType() string
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Enqueue inserts cmd using tx, so it commits or rolls back with the caller's
// transaction. A nil tx uses the store's own connection.
func (s *Store) Enqueue(ctx context.Context, tx *gorm.DB, cmd Command) (*models.QueuedCommand, error) {
	if tx == nil {
		tx = s.db
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", cmd.CommandType(), err)
	}

	now := tx.NowFunc()
	row := &models.QueuedCommand{
		Type:          cmd.CommandType(),
		Payload:       datatypes.JSON(payload),
		Status:        models.CommandStatusPending,
		NextAttemptAt: now,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("enqueue %s command: %w", cmd.CommandType(), err)
	}
	return row, nil
}

func (s *Store) Get(ctx context.Context, id uint) (*models.QueuedCommand, error) {
	var row models.QueuedCommand
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get queued command %d: %w", id, err)
	}
	return &row, nil
}

// Lease claims up to limit due commands for consumer. Pending commands are
// due once NextAttemptAt has passed; leased commands are due again once
// their lease expired. Each lease counts as one attempt.
func (s *Store) Lease(ctx context.Context, consumer string, limit int, now time.Time, ttl time.Duration) ([]models.QueuedCommand, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	now = now.UTC()
	expiresAt := now.Add(ttl)

	var leased []models.QueuedCommand
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.QueuedCommand{}).
			Scopes(due(now)).
			Order("next_attempt_at ASC").
			Order("id ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var ids []uint
		if err := query.Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("select lease candidates: %w", err)
		}

		for _, id := range ids {
			result := tx.Model(&models.QueuedCommand{}).
				Where("id = ?", id).
				Scopes(due(now)).
				Updates(map[string]any{
					"status":           models.CommandStatusLeased,
					"lease_owner":      consumer,
					"lease_expires_at": expiresAt,
					"attempts":         gorm.Expr("attempts + 1"),
					"updated_at":       now,
				})
			if result.Error != nil {
				return fmt.Errorf("lease command %d: %w", id, result.Error)
			}
			if result.RowsAffected == 0 {
				continue
			}
			var row models.QueuedCommand
			if err := tx.First(&row, id).Error; err != nil {
				return fmt.Errorf("reload leased command %d: %w", id, err)
			}
			leased = append(leased, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// Complete marks a leased command as succeeded. cmd is the row returned by
// Lease; the update only applies while that lease is still the current one.
func (s *Store) Complete(ctx context.Context, cmd models.QueuedCommand, now time.Time) error {
	return s.finish(ctx, cmd, map[string]any{
		"status":           models.CommandStatusSucceeded,
		"lease_owner":      "",
		"lease_expires_at": nil,
		"last_error":       "",
		"processed_at":     now.UTC(),
		"updated_at":       now.UTC(),
	})
}

// Retry releases the lease and schedules another attempt at nextAttemptAt.
func (s *Store) Retry(ctx context.Context, cmd models.QueuedCommand, now, nextAttemptAt time.Time, cause error) error {
	return s.finish(ctx, cmd, map[string]any{
		"status":           models.CommandStatusPending,
		"lease_owner":      "",
		"lease_expires_at": nil,
		"last_error":       errorText(cause),
		"next_attempt_at":  nextAttemptAt.UTC(),
		"updated_at":       now.UTC(),
	})
}

// Dead moves a leased command to the dead-letter state.
func (s *Store) Dead(ctx context.Context, cmd models.QueuedCommand, now time.Time, cause error) error {
	return s.finish(ctx, cmd, map[string]any{
		"status":           models.CommandStatusDead,
		"lease_owner":      "",
		"lease_expires_at": nil,
		"last_error":       errorText(cause),
		"processed_at":     now.UTC(),
		"updated_at":       now.UTC(),
	})
}

// Extend renews an unexpired lease to now+ttl. It returns ErrNotFound when
// the lease already expired or was taken over.
func (s *Store) Extend(ctx context.Context, cmd models.QueuedCommand, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	result := s.db.WithContext(ctx).Model(&models.QueuedCommand{}).
		Scopes(currentLease(cmd)).
		Where("lease_expires_at > ?", now).
		Updates(map[string]any{
			"lease_expires_at": now.Add(ttl),
			"updated_at":       now,
		})
	if result.Error != nil {
		return fmt.Errorf("extend lease of command %d: %w", cmd.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) finish(ctx context.Context, cmd models.QueuedCommand, updates map[string]any) error {
	result := s.db.WithContext(ctx).Model(&models.QueuedCommand{}).
		Scopes(currentLease(cmd)).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update queued command %d: %w", cmd.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// currentLease matches the row only while it still carries the lease that
// produced cmd. Every lease bumps attempts, so a reclaimed row never matches
// an older copy even when both holders share a consumer name.
func currentLease(cmd models.QueuedCommand) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ? AND status = ? AND lease_owner = ? AND attempts = ?",
			cmd.ID, models.CommandStatusLeased, cmd.LeaseOwner, cmd.Attempts)
	}
}

// Requeue makes a dead command pending again with a fresh attempt budget.
func (s *Store) Requeue(ctx context.Context, id uint, now time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.QueuedCommand{}).
		Where("id = ? AND status = ?", id, models.CommandStatusDead).
		Updates(map[string]any{
			"status":          models.CommandStatusPending,
			"attempts":        0,
			"next_attempt_at": now.UTC(),
			"processed_at":    nil,
			"updated_at":      now.UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("requeue command %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns commands newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status string, limit, offset int) ([]models.QueuedCommand, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.QueuedCommand{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count queued commands: %w", err)
	}
	var rows []models.QueuedCommand
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list queued commands: %w", err)
	}
	return rows, total, nil
}

// CountByStatus returns the number of commands per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&models.QueuedCommand{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count queued commands: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func due(now time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"((status = ? AND next_attempt_at <= ?) OR (status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?))",
			models.CommandStatusPending, now,
			models.CommandStatusLeased, now,
		)
	}
}

// maxErrorText bounds last_error in bytes.
const maxErrorText = 2000

// errorText truncates on a rune boundary so the column always holds valid UTF-8.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= maxErrorText {
		return strings.ToValidUTF8(msg, "")
	}
	cut := maxErrorText
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return strings.ToValidUTF8(msg[:cut], "")
}
