package models

import (
	"time"

	"gorm.io/datatypes"
)

type FormSubmission struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	Payload     datatypes.JSONMap `gorm:"not null" json:"payload"`
	SubmittedAt time.Time         `gorm:"not null" json:"submitted_at"`
	FormID      uint              `gorm:"not null;index" json:"form_id"`
	Form        *FormDefinition   `gorm:"foreignKey:FormID" json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
