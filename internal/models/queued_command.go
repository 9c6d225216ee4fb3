package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CommandStatusPending   = "pending"
	CommandStatusLeased    = "leased"
	CommandStatusSucceeded = "succeeded"
	CommandStatusDead      = "dead"
)

// QueuedCommand is one durable queue message.
type QueuedCommand struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Type           string         `gorm:"size:64;not null;index" json:"type"`
	Payload        datatypes.JSON `gorm:"not null" json:"payload"`
	Status         string         `gorm:"size:16;not null;index:idx_queued_commands_due,priority:1" json:"status"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt  time.Time      `gorm:"not null;index:idx_queued_commands_due,priority:2" json:"next_attempt_at"`
	LeaseOwner     string         `gorm:"size:100" json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time     `json:"lease_expires_at,omitempty"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
