package models

import "github.com/google/uuid"

// AccountSettings holds mailer configuration. OwnerID is nil in singleton mode.
type AccountSettings struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	OwnerID          *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"-"`
	SMTPHost         *string    `gorm:"column:smtp_host;size:255" json:"smtp_host"`
	SMTPPort         *int       `gorm:"column:smtp_port" json:"smtp_port"`
	SMTPUser         *string    `gorm:"column:smtp_user;size:255" json:"smtp_user"`
	SMTPPassword     *string    `gorm:"column:smtp_password;size:255" json:"-"`
	EmailFromName    *string    `gorm:"size:255" json:"email_from_name"`
	EmailFromAddress *string    `gorm:"size:255" json:"email_from_address"`
	MailerEncryption *string    `gorm:"size:16" json:"mailer_encryption"`
}

// HasSMTPServer reports whether host and port are both set.
func (a *AccountSettings) HasSMTPServer() bool {
	if a == nil {
		return false
	}
	return a.SMTPHost != nil && *a.SMTPHost != "" && a.SMTPPort != nil && *a.SMTPPort > 0
}
