// Package notification resolves and triggers the delivery channels configured
// for a form whenever one of its submissions is dispatched.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Channel is one delivery mechanism, such as email or webhook.
type Channel interface {
	// Name is the key stored in NotificationSettings.Type.
	Name() string
	// Priority orders channels for presentation, higher first.
	Priority() int
	// CheckRequirements reports whether the channel can deliver for the
	// given form owner right now. It must not mutate state.
	CheckRequirements(ctx context.Context, ownerID uuid.UUID) bool
	// RequirementsMessage describes what is missing, or "" if nothing is required.
	RequirementsMessage() string
	ConfigSchema() ConfigSchema
	Trigger(ctx context.Context, submission *models.FormSubmission, settings *models.NotificationSettings) error
}

const (
	FieldString = "string"
	FieldText   = "text"
	FieldEmail  = "email"
	FieldURL    = "url"
	FieldBool   = "bool"
)

// SchemaField describes one configurable value of a channel. Rules uses
// go-playground/validator tag syntax and is applied to non-empty values.
type SchemaField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Rules    string `json:"rules,omitempty"`
	Help     string `json:"help,omitempty"`
}

// ConfigSchema is the typed descriptor of a channel's settings. Target is nil
// when the channel has no target field.
type ConfigSchema struct {
	Target  *SchemaField  `json:"target,omitempty"`
	Options []SchemaField `json:"options"`
}

var ErrInvalidSettings = errors.New("invalid notification settings")

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed schema validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidSettings, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSettings
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a target and options map against the schema. Keys not
// described by the schema are ignored.
func (s ConfigSchema) Validate(target *string, options map[string]any) error {
	var fields []FieldError

	if s.Target != nil {
		value := ""
		if target != nil {
			value = strings.TrimSpace(*target)
		}
		if msg := checkString(*s.Target, value); msg != "" {
			fields = append(fields, FieldError{Field: "target", Message: msg})
		}
	}

	for _, field := range s.Options {
		raw, ok := options[field.Name]
		if !ok || raw == nil {
			if field.Required {
				fields = append(fields, FieldError{Field: "options." + field.Name, Message: "is required"})
			}
			continue
		}
		if msg := checkOption(field, raw); msg != "" {
			fields = append(fields, FieldError{Field: "options." + field.Name, Message: msg})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkOption(field SchemaField, raw any) string {
	if field.Type == FieldBool {
		if _, ok := raw.(bool); !ok {
			return "must be a boolean"
		}
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return "must be a string"
	}
	return checkString(field, strings.TrimSpace(value))
}

func checkString(field SchemaField, value string) string {
	if value == "" {
		if field.Required {
			return "is required"
		}
		return ""
	}
	rules := field.Rules
	if rules == "" {
		switch field.Type {
		case FieldEmail:
			rules = "email"
		case FieldURL:
			rules = "url"
		}
	}
	if rules == "" {
		return ""
	}
	if err := validate.Var(value, rules); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ruleMessage(verrs[0])
		}
		return err.Error()
	}
	return ""
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
