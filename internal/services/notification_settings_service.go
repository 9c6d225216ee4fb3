package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrUnknownChannel = errors.New("unknown notification channel")

type NotificationSettingsService struct {
	db       *gorm.DB
	registry *notification.Registry
}

func NewNotificationSettingsService(db *gorm.DB, registry *notification.Registry) *NotificationSettingsService {
	return &NotificationSettingsService{db: db, registry: registry}
}

// List returns the form's settings in ID order.
func (s *NotificationSettingsService) List(ctx context.Context, ownerID uuid.UUID, formID uint) ([]models.NotificationSettings, error) {
	form, err := ownedForm(s.db.WithContext(ctx), ownerID, formID)
	if err != nil {
		return nil, err
	}
	var settings []models.NotificationSettings
	if err := s.db.WithContext(ctx).Where("form_id = ?", form.ID).Order("id ASC").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification settings: %w", err)
	}
	return settings, nil
}

// Upsert validates req against the channel schema and writes the single
// (form, type) row, creating it when missing.
func (s *NotificationSettingsService) Upsert(ctx context.Context, ownerID uuid.UUID, formID uint, channelType string, req *dto.UpsertNotificationSettingsRequest) (*models.NotificationSettings, error) {
	channel, ok := s.registry.Resolve(channelType)
	if !ok {
		return nil, ErrUnknownChannel
	}
	form, err := ownedForm(s.db.WithContext(ctx), ownerID, formID)
	if err != nil {
		return nil, err
	}

	target := trimmed(req.Target)
	if err := channel.ConfigSchema().Validate(target, req.Options); err != nil {
		return nil, err
	}

	options := req.Options
	if options == nil {
		options = map[string]any{}
	}

	var row models.NotificationSettings
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("form_id = ? AND type = ?", form.ID, channel.Name()).Order("id ASC").First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = models.NotificationSettings{
				FormID:  form.ID,
				Type:    channel.Name(),
				Enabled: req.Enabled,
				Target:  target,
				Options: options,
			}
			return tx.Create(&row).Error
		case err != nil:
			return err
		}
		row.Enabled = req.Enabled
		row.Target = target
		row.Options = options
		return tx.Select("enabled", "target", "options").Save(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save notification settings: %w", err)
	}
	return &row, nil
}

// ChannelStatus describes the registered channels for one owner.
func (s *NotificationSettingsService) ChannelStatus(ctx context.Context, ownerID uuid.UUID) []dto.ChannelResponse {
	channels := s.registry.Channels()
	out := make([]dto.ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		met := ch.CheckRequirements(ctx, ownerID)
		msg := ""
		if !met {
			msg = strings.TrimSpace(ch.RequirementsMessage())
		}
		out = append(out, dto.ChannelResponse{
			Name:                ch.Name(),
			Priority:            ch.Priority(),
			RequirementsMet:     met,
			RequirementsMessage: msg,
			Schema:              ch.ConfigSchema(),
		})
	}
	return out
}
