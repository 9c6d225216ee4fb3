package dto

import "github.com/ahmetcoskunkizilkaya/formrelay/internal/notification"

type ChannelResponse struct {
	Name                string                    `json:"name"`
	Priority            int                       `json:"priority"`
	RequirementsMet     bool                      `json:"requirements_met"`
	RequirementsMessage string                    `json:"requirements_message"`
	Schema              notification.ConfigSchema `json:"schema"`
}

type UpsertNotificationSettingsRequest struct {
	Enabled bool           `json:"enabled"`
	Target  *string        `json:"target"`
	Options map[string]any `json:"options"`
}
