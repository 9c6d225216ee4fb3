package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SystemLog stores ERROR+ log records for later inspection.
type SystemLog struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp    time.Time      `gorm:"not null;index" json:"timestamp"`
	Level        string         `gorm:"size:10;not null;index" json:"level"`
	Message      string         `gorm:"type:text" json:"message"`
	FormID       *uint          `gorm:"index" json:"form_id"`
	SubmissionID *uint          `gorm:"index" json:"submission_id"`
	CommandID    *uint          `json:"command_id"`
	Channel      string         `gorm:"size:32" json:"channel"`
	Error        string         `gorm:"type:text" json:"error"`
	Extra        datatypes.JSON `json:"extra"`
	CreatedAt    time.Time      `json:"created_at"`
}
