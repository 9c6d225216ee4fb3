package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/config"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountSettingsService stores mailer settings. In singleton mode every
// owner shares the row whose owner_id is NULL; in per_owner mode each user
// has their own row.
type AccountSettingsService struct {
	db       *gorm.DB
	mode     string
	validate *validator.Validate
}

func NewAccountSettingsService(db *gorm.DB, mode string) *AccountSettingsService {
	if mode != config.AccountSettingsPerOwner {
		mode = config.AccountSettingsSingleton
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &AccountSettingsService{db: db, mode: mode, validate: v}
}

func (s *AccountSettingsService) Mode() string {
	return s.mode
}

func (s *AccountSettingsService) scope(ownerID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if s.mode == config.AccountSettingsPerOwner {
			return db.Where("owner_id = ?", ownerID)
		}
		return db.Where("owner_id IS NULL")
	}
}

// Effective returns the settings that apply to ownerID, or nil when none
// have been saved.
func (s *AccountSettingsService) Effective(ctx context.Context, ownerID uuid.UUID) (*models.AccountSettings, error) {
	var settings models.AccountSettings
	err := s.db.WithContext(ctx).Scopes(s.scope(ownerID)).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account settings: %w", err)
	}
	return &settings, nil
}

func (s *AccountSettingsService) Get(ctx context.Context, ownerID uuid.UUID) (*dto.AccountSettingsResponse, error) {
	settings, err := s.Effective(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.response(settings), nil
}

// Update writes the present fields. Empty strings clear a value. A nil
// password keeps the stored one.
func (s *AccountSettingsService) Update(ctx context.Context, ownerID uuid.UUID, req *dto.AccountSettingsRequest) (*dto.AccountSettingsResponse, error) {
	normalized := dto.AccountSettingsRequest{
		SMTPHost:         trimmed(req.SMTPHost),
		SMTPPort:         req.SMTPPort,
		SMTPUser:         trimmed(req.SMTPUser),
		SMTPPassword:     req.SMTPPassword,
		EmailFromName:    trimmed(req.EmailFromName),
		EmailFromAddress: trimmed(req.EmailFromAddress),
		MailerEncryption: trimmed(req.MailerEncryption),
	}
	if normalized.SMTPPort != nil && *normalized.SMTPPort == 0 {
		normalized.SMTPPort = nil
	}
	if err := s.validate.Struct(normalized); err != nil {
		return nil, err
	}

	var saved models.AccountSettings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Scopes(s.scope(ownerID)).First(&saved).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if saved.ID == 0 && s.mode == config.AccountSettingsPerOwner {
			owner := ownerID
			saved.OwnerID = &owner
		}
		saved.SMTPHost = normalized.SMTPHost
		saved.SMTPPort = normalized.SMTPPort
		saved.SMTPUser = normalized.SMTPUser
		saved.EmailFromName = normalized.EmailFromName
		saved.EmailFromAddress = normalized.EmailFromAddress
		saved.MailerEncryption = normalized.MailerEncryption
		if req.SMTPPassword != nil {
			saved.SMTPPassword = trimmed(req.SMTPPassword)
		}
		return tx.Save(&saved).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save account settings: %w", err)
	}
	return s.response(&saved), nil
}

func (s *AccountSettingsService) response(settings *models.AccountSettings) *dto.AccountSettingsResponse {
	resp := &dto.AccountSettingsResponse{Mode: s.mode}
	if settings == nil {
		return resp
	}
	resp.SMTPHost = settings.SMTPHost
	resp.SMTPPort = settings.SMTPPort
	resp.SMTPUser = settings.SMTPUser
	resp.HasSMTPPassword = settings.SMTPPassword != nil && *settings.SMTPPassword != ""
	resp.EmailFromName = settings.EmailFromName
	resp.EmailFromAddress = settings.EmailFromAddress
	resp.MailerEncryption = settings.MailerEncryption
	return resp
}
