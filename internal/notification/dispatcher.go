package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionFinder loads a submission with its form and the form's settings
// ordered by ID. It returns ErrSubmissionNotFound for unknown IDs.
type SubmissionFinder interface {
	FindForDispatch(ctx context.Context, id uint) (*models.FormSubmission, error)
}

// TriggerError wraps a channel delivery failure.
type TriggerError struct {
	Channel    string
	SettingsID uint
	Err        error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("trigger %s channel (settings %d): %v", e.Channel, e.SettingsID, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

type Dispatcher struct {
	finder   SubmissionFinder
	registry *Registry
	logger   *slog.Logger
}

func NewDispatcher(finder SubmissionFinder, registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{finder: finder, registry: registry, logger: logger}
}

// HandlePayload decodes a queued SendSubmissionNotification and handles it.
func (d *Dispatcher) HandlePayload(ctx context.Context, payload []byte) error {
	var cmd SendSubmissionNotification
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return queue.Permanent(fmt.Errorf("decode %s payload: %w", SendSubmissionNotificationType, err))
	}
	if cmd.SubmissionID == 0 {
		return queue.Permanent(fmt.Errorf("decode %s payload: missing submissionId", SendSubmissionNotificationType))
	}
	return d.Handle(ctx, cmd)
}

// Handle triggers every enabled, resolvable channel whose requirements are met.
// The first delivery failure is returned; channels triggered before it are
// not rolled back.
func (d *Dispatcher) Handle(ctx context.Context, cmd SendSubmissionNotification) error {
	submission, err := d.finder.FindForDispatch(ctx, cmd.SubmissionID)
	if errors.Is(err, ErrSubmissionNotFound) {
		d.logger.Debug("submission gone, skipping notifications", "submission_id", cmd.SubmissionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load submission %d: %w", cmd.SubmissionID, err)
	}

	form := submission.Form
	if form == nil {
		d.logger.Debug("submission has no form, skipping notifications", "submission_id", submission.ID)
		return nil
	}

	for _, settings := range form.EnabledNotificationSettings() {
		log := d.logger.With(
			"form_id", form.ID,
			"submission_id", submission.ID,
			"settings_id", settings.ID,
			"channel", settings.Type,
		)

		channel, ok := d.registry.Resolve(settings.Type)
		if !ok {
			log.Error(fmt.Sprintf("unknown notification channel %q for form %d (settings %d)", settings.Type, form.ID, settings.ID))
			continue
		}

		if !channel.CheckRequirements(ctx, form.OwnerID) {
			log.Info("notification channel requirements not met", "requirements", channel.RequirementsMessage())
			continue
		}

		if err := channel.Trigger(ctx, submission, settings); err != nil {
			return &TriggerError{Channel: channel.Name(), SettingsID: settings.ID, Err: err}
		}
	}
	return nil
}
