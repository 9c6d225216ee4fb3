package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSubmissionNotFound is shared with the dispatcher so a deleted
// submission ends dispatch without a retry.
var ErrSubmissionNotFound = notification.ErrSubmissionNotFound

// priorityColumns are the payload keys shown first in submission tables.
var priorityColumns = []string{"name", "email", "subject", "message"}

const maxPriorityColumns = 2

type SubmissionService struct {
	db    *gorm.DB
	queue *queue.Store
	now   func() time.Time
}

var _ notification.SubmissionFinder = (*SubmissionService)(nil)

func NewSubmissionService(db *gorm.DB, store *queue.Store) *SubmissionService {
	return &SubmissionService{db: db, queue: store, now: func() time.Time { return time.Now().UTC() }}
}

// Save stores a submission and enqueues its notification command in the
// same transaction.
func (s *SubmissionService) Save(ctx context.Context, form *models.FormDefinition, payload map[string]any) (*models.FormSubmission, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	submission := models.FormSubmission{
		FormID:      form.ID,
		Payload:     payload,
		SubmittedAt: s.now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&submission).Error; err != nil {
			return fmt.Errorf("failed to store submission: %w", err)
		}
		_, err := s.queue.Enqueue(ctx, tx, notification.SendSubmissionNotification{SubmissionID: submission.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	submission.Form = form
	return &submission, nil
}

// FindForDispatch loads a submission with its form, the form owner and the
// form's notification settings ordered by ID.
func (s *SubmissionService) FindForDispatch(ctx context.Context, id uint) (*models.FormSubmission, error) {
	var submission models.FormSubmission
	err := s.db.WithContext(ctx).
		Preload("Form").
		Preload("Form.Owner").
		Preload("Form.NotificationSettings", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&submission, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return &submission, nil
}

// List returns the form's submissions newest first.
func (s *SubmissionService) List(ctx context.Context, ownerID uuid.UUID, formID uint, limit, offset int) ([]models.FormSubmission, int64, error) {
	form, err := ownedForm(s.db.WithContext(ctx), ownerID, formID)
	if err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.FormSubmission{}).Where("form_id = ?", form.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	var submissions []models.FormSubmission
	if err := query.Order("submitted_at DESC, id DESC").Limit(limit).Offset(offset).Find(&submissions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, total, nil
}

func (s *SubmissionService) Get(ctx context.Context, ownerID uuid.UUID, formID, submissionID uint) (*models.FormSubmission, error) {
	form, err := ownedForm(s.db.WithContext(ctx), ownerID, formID)
	if err != nil {
		return nil, err
	}
	var submission models.FormSubmission
	if err := s.db.WithContext(ctx).Where("id = ? AND form_id = ?", submissionID, form.ID).First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return &submission, nil
}

// BulkDelete deletes the listed submissions that belong to the form and
// returns how many were removed.
func (s *SubmissionService) BulkDelete(ctx context.Context, ownerID uuid.UUID, formID uint, ids []uint) (int64, error) {
	form, err := ownedForm(s.db.WithContext(ctx), ownerID, formID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("form_id = ? AND id IN ?", form.ID, ids).Delete(&models.FormSubmission{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete submissions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Resend enqueues another notification command for an existing submission.
func (s *SubmissionService) Resend(ctx context.Context, ownerID uuid.UUID, formID, submissionID uint) (*models.QueuedCommand, error) {
	submission, err := s.Get(ctx, ownerID, formID, submissionID)
	if err != nil {
		return nil, err
	}
	return s.queue.Enqueue(ctx, s.db.WithContext(ctx), notification.SendSubmissionNotification{SubmissionID: submission.ID})
}

// Columns returns every payload key submitted to the form, sorted, plus the
// preferred columns for a compact table.
func (s *SubmissionService) Columns(ctx context.Context, ownerID uuid.UUID, formID uint) ([]string, []string, error) {
	form, err := ownedForm(s.db.WithContext(ctx), ownerID, formID)
	if err != nil {
		return nil, nil, err
	}

	var submissions []models.FormSubmission
	if err := s.db.WithContext(ctx).Select("payload").Where("form_id = ?", form.ID).Find(&submissions).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load submissions: %w", err)
	}

	keys := SubmittedKeys(submissions)
	return keys, PriorityColumns(keys), nil
}

func SubmittedKeys(submissions []models.FormSubmission) []string {
	seen := map[string]bool{}
	keys := []string{}
	for _, sub := range submissions {
		for k := range sub.Payload {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// PriorityColumns picks up to two well-known keys in preference order,
// falling back to the first key.
func PriorityColumns(keys []string) []string {
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	cols := []string{}
	for _, k := range priorityColumns {
		if present[k] {
			cols = append(cols, k)
			if len(cols) == maxPriorityColumns {
				break
			}
		}
	}
	if len(cols) == 0 && len(keys) > 0 {
		cols = append(cols, keys[0])
	}
	return cols
}
