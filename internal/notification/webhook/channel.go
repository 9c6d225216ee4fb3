// Package webhook implements a notification channel that POSTs each
// submission as JSON to a user-supplied URL.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
	"github.com/google/uuid"
)

const (
	Name            = "webhook"
	SignatureHeader = "X-Formrelay-Signature"
	EventHeader     = "X-Formrelay-Event"
	EventSubmission = "submission.created"
)

var ErrNoTarget = errors.New("webhook target URL is not set")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded with status %d: %s", e.StatusCode, e.Body)
}

// Payload is the JSON document delivered to the target.
type Payload struct {
	Event      string            `json:"event"`
	Form       FormPayload       `json:"form"`
	Submission SubmissionPayload `json:"submission"`
}

type FormPayload struct {
	ID   uint      `json:"id"`
	UID  uuid.UUID `json:"uid"`
	Name string    `json:"name"`
}

type SubmissionPayload struct {
	ID          uint           `json:"id"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Payload     map[string]any `json:"payload"`
}

type Channel struct {
	client *http.Client
	logger *slog.Logger
}

var _ notification.Channel = (*Channel)(nil)

type Config struct {
	Timeout time.Duration
	// AllowPrivateTargets disables the address guard, for local development.
	AllowPrivateTargets bool
}

// New returns a channel whose client refuses loopback, private and
// link-local targets unless cfg allows them.
func New(cfg Config, logger *slog.Logger) *Channel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return NewWithClient(newClient(cfg), logger)
}

func NewWithClient(client *http.Client, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{client: client, logger: logger.With("channel", Name)}
}

func (c *Channel) Name() string                                      { return Name }
func (c *Channel) Priority() int                                     { return -10 }
func (c *Channel) CheckRequirements(context.Context, uuid.UUID) bool { return true }
func (c *Channel) RequirementsMessage() string                       { return "" }

func (c *Channel) ConfigSchema() notification.ConfigSchema {
	return notification.ConfigSchema{
		Target: &notification.SchemaField{
			Name:     "target",
			Label:    "URL",
			Type:     notification.FieldURL,
			Required: true,
			Rules:    "http_url,max=255",
		},
		Options: []notification.SchemaField{
			{Name: "secret", Label: "Signing secret", Type: notification.FieldString, Rules: "max=255",
				Help: "When set, requests carry an HMAC-SHA256 signature of the body."},
		},
	}
}

func (c *Channel) Trigger(ctx context.Context, submission *models.FormSubmission, settings *models.NotificationSettings) error {
	target := settings.TargetValue()
	if target == "" {
		return queue.Permanent(ErrNoTarget)
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return queue.Permanent(fmt.Errorf("invalid webhook target %q", target))
	}

	body, err := json.Marshal(buildPayload(submission))
	if err != nil {
		return queue.Permanent(fmt.Errorf("encode webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return queue.Permanent(fmt.Errorf("create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "formrelay-webhook/1")
	req.Header.Set(EventHeader, EventSubmission)
	if secret := settings.StringOption("secret", ""); secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrBlockedAddress) {
			return queue.Permanent(fmt.Errorf("post webhook: %w", err))
		}
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return statusErr
		}
		return queue.Permanent(statusErr)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("webhook delivered",
		"form_id", submission.FormID,
		"submission_id", submission.ID,
		"status", resp.StatusCode,
	)
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func buildPayload(submission *models.FormSubmission) Payload {
	p := Payload{
		Event: EventSubmission,
		Submission: SubmissionPayload{
			ID:          submission.ID,
			SubmittedAt: submission.SubmittedAt.UTC(),
			Payload:     submission.Payload,
		},
	}
	if form := submission.Form; form != nil {
		p.Form = FormPayload{ID: form.ID, UID: form.UID, Name: form.Name}
	}
	return p
}
