package models

import "gorm.io/datatypes"

// NotificationSettings configures one channel for one form. Type matches a
// channel name; Options is channel-defined and may hold unknown keys.
type NotificationSettings struct {
	ID      uint              `gorm:"primaryKey" json:"id"`
	Enabled bool              `gorm:"not null;default:false" json:"enabled"`
	Type    string            `gorm:"size:32;not null;index:idx_notification_settings_form_type" json:"type"`
	Target  *string           `gorm:"size:255" json:"target"`
	Options datatypes.JSONMap `json:"options"`
	FormID  uint              `gorm:"not null;index:idx_notification_settings_form_type" json:"form_id"`
	Form    *FormDefinition   `gorm:"foreignKey:FormID" json:"-"`
}

func (NotificationSettings) TableName() string { return "form_notification_settings" }

// Option returns the named option, or def when it is absent or null.
func (s *NotificationSettings) Option(name string, def any) any {
	if s.Options == nil {
		return def
	}
	v, ok := s.Options[name]
	if !ok || v == nil {
		return def
	}
	return v
}

// StringOption is Option for string values; other types fall back to def.
func (s *NotificationSettings) StringOption(name, def string) string {
	if v, ok := s.Option(name, nil).(string); ok && v != "" {
		return v
	}
	return def
}

func (s *NotificationSettings) TargetValue() string {
	if s.Target == nil {
		return ""
	}
	return *s.Target
}
