package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrFormNotFound  = errors.New("form not found")
	ErrFieldNotFound = errors.New("field not found")
	ErrForbidden     = errors.New("you do not own this form")
	ErrInvalidForm   = errors.New("form name is required")
	ErrInvalidField  = errors.New("field name is required")
	ErrInvalidOrder  = errors.New("field order must list every field of the form exactly once")
)

type FormService struct {
	db *gorm.DB
}

func NewFormService(db *gorm.DB) *FormService {
	return &FormService{db: db}
}

// Owned loads a form and checks that ownerID owns it.
func (s *FormService) Owned(ctx context.Context, ownerID uuid.UUID, formID uint) (*models.FormDefinition, error) {
	return ownedForm(s.db.WithContext(ctx), ownerID, formID)
}

func ownedForm(db *gorm.DB, ownerID uuid.UUID, formID uint) (*models.FormDefinition, error) {
	var form models.FormDefinition
	if err := db.First(&form, formID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("failed to load form: %w", err)
	}
	if form.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return &form, nil
}

// FindEnabledByUID returns the public form behind /e/{uid}. Disabled forms
// are reported as not found.
func (s *FormService) FindEnabledByUID(ctx context.Context, uid uuid.UUID) (*models.FormDefinition, error) {
	var form models.FormDefinition
	err := s.db.WithContext(ctx).Where("uid = ? AND enabled = ?", uid, true).First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("failed to load form: %w", err)
	}
	return &form, nil
}

func (s *FormService) List(ctx context.Context, ownerID uuid.UUID) ([]models.FormDefinition, error) {
	var forms []models.FormDefinition
	if err := s.db.WithContext(ctx).Scopes(tenant.ForOwner(ownerID)).Order("id DESC").Find(&forms).Error; err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	return forms, nil
}

func (s *FormService) Create(ctx context.Context, ownerID uuid.UUID, req *dto.CreateFormRequest) (*models.FormDefinition, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidForm
	}
	form := models.FormDefinition{
		Name:        name,
		Description: trimmed(req.Description),
		Enabled:     true,
		RedirectURL: trimmed(req.RedirectURL),
		OwnerID:     ownerID,
	}
	if req.Enabled != nil {
		form.Enabled = *req.Enabled
	}
	if err := s.db.WithContext(ctx).Create(&form).Error; err != nil {
		return nil, fmt.Errorf("failed to create form: %w", err)
	}
	return &form, nil
}

func (s *FormService) Get(ctx context.Context, ownerID uuid.UUID, formID uint) (*models.FormDefinition, error) {
	form, err := s.Owned(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("form_id = ?", form.ID).Order("position ASC, id ASC").Find(&form.Fields).Error; err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}
	return form, nil
}

// Update applies the present fields of req. The UID is never written.
func (s *FormService) Update(ctx context.Context, ownerID uuid.UUID, formID uint, req *dto.UpdateFormRequest) (*models.FormDefinition, error) {
	form, err := s.Owned(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrInvalidForm
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = trimmed(req.Description)
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.RedirectURL != nil {
		updates["redirect_url"] = trimmed(req.RedirectURL)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(form).Omit("uid").Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update form: %w", err)
		}
	}
	return s.Get(ctx, ownerID, formID)
}

func (s *FormService) Delete(ctx context.Context, ownerID uuid.UUID, formID uint) error {
	form, err := s.Owned(ctx, ownerID, formID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteFormRows(tx, []uint{form.ID})
	})
}

// deleteFormRows removes forms and their dependent rows inside tx.
func deleteFormRows(tx *gorm.DB, formIDs []uint) error {
	if len(formIDs) == 0 {
		return nil
	}
	if err := tx.Where("form_id IN ?", formIDs).Delete(&models.FormField{}).Error; err != nil {
		return fmt.Errorf("failed to delete fields: %w", err)
	}
	if err := tx.Where("form_id IN ?", formIDs).Delete(&models.FormSubmission{}).Error; err != nil {
		return fmt.Errorf("failed to delete submissions: %w", err)
	}
	if err := tx.Where("form_id IN ?", formIDs).Delete(&models.NotificationSettings{}).Error; err != nil {
		return fmt.Errorf("failed to delete notification settings: %w", err)
	}
	if err := tx.Where("id IN ?", formIDs).Delete(&models.FormDefinition{}).Error; err != nil {
		return fmt.Errorf("failed to delete forms: %w", err)
	}
	return nil
}

// AddField appends a field after the current last position.
func (s *FormService) AddField(ctx context.Context, ownerID uuid.UUID, formID uint, req *dto.CreateFieldRequest) (*models.FormField, error) {
	form, err := s.Owned(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidField
	}
	fieldType := strings.TrimSpace(req.Type)
	if fieldType == "" {
		fieldType = "text"
	}

	field := models.FormField{
		FormID:   form.ID,
		Name:     name,
		Label:    strings.TrimSpace(req.Label),
		Type:     fieldType,
		Required: req.Required,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos int
		if err := tx.Model(&models.FormField{}).Where("form_id = ?", form.ID).
			Select("COALESCE(MAX(position), -1)").Row().Scan(&maxPos); err != nil {
			return err
		}
		field.Position = maxPos + 1
		return tx.Create(&field).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add field: %w", err)
	}
	return &field, nil
}

func (s *FormService) DeleteField(ctx context.Context, ownerID uuid.UUID, formID, fieldID uint) error {
	form, err := s.Owned(ctx, ownerID, formID)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where("id = ? AND form_id = ?", fieldID, form.ID).Delete(&models.FormField{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete field: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrFieldNotFound
	}
	return nil
}

// ReorderFields assigns positions following fieldIDs, which must name every
// field of the form once.
func (s *FormService) ReorderFields(ctx context.Context, ownerID uuid.UUID, formID uint, fieldIDs []uint) ([]models.FormField, error) {
	form, err := s.Owned(ctx, ownerID, formID)
	if err != nil {
		return nil, err
	}

	var fields []models.FormField
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&models.FormField{}).Where("form_id = ?", form.ID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if !sameIDs(existing, fieldIDs) {
			return ErrInvalidOrder
		}
		for pos, id := range fieldIDs {
			if err := tx.Model(&models.FormField{}).Where("id = ?", id).Update("position", pos).Error; err != nil {
				return err
			}
		}
		return tx.Where("form_id = ?", form.ID).Order("position ASC").Find(&fields).Error
	})
	if err != nil {
		if errors.Is(err, ErrInvalidOrder) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reorder fields: %w", err)
	}
	return fields, nil
}

func sameIDs(existing, ordered []uint) bool {
	if len(existing) != len(ordered) {
		return false
	}
	seen := make(map[uint]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range ordered {
		if !seen[id] {
			return false
		}
		delete(seen, id)
	}
	return true
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
