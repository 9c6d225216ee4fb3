package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FormDefinition is a form endpoint exposed at /e/{uid}.
type FormDefinition struct {
	ID                   uint                   `gorm:"primaryKey" json:"id"`
	Name                 string                 `gorm:"size:255;not null" json:"name"`
	Description          *string                `gorm:"size:255" json:"description"`
	UID                  uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex" json:"uid"`
	Enabled              bool                   `gorm:"not null" json:"enabled"`
	RedirectURL          *string                `gorm:"size:255" json:"redirect_url"`
	OwnerID              uuid.UUID              `gorm:"type:uuid;not null;index" json:"-"`
	Owner                *User                  `gorm:"foreignKey:OwnerID" json:"-"`
	Fields               []FormField            `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"fields,omitempty"`
	Submissions          []FormSubmission       `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"-"`
	NotificationSettings []NotificationSettings `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

func (FormDefinition) TableName() string { return "forms" }

// BeforeCreate assigns the public identifier on first persistence only.
func (f *FormDefinition) BeforeCreate(tx *gorm.DB) error {
	if f.UID == uuid.Nil {
		uid, err := uuid.NewV7()
		if err != nil {
			return err
		}
		f.UID = uid
	}
	return nil
}

// EnabledNotificationSettings returns the enabled rows in their loaded order.
func (f *FormDefinition) EnabledNotificationSettings() []*NotificationSettings {
	enabled := make([]*NotificationSettings, 0, len(f.NotificationSettings))
	for i := range f.NotificationSettings {
		if f.NotificationSettings[i].Enabled {
			enabled = append(enabled, &f.NotificationSettings[i])
		}
	}
	return enabled
}
