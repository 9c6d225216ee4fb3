// Package email implements the email notification channel on top of the
// account's SMTP settings.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
	"github.com/google/uuid"
)

const Name = "email"

var ErrNoRecipient = errors.New("no recipient address for email notification")

// SettingsProvider returns the AccountSettings that apply to a form owner,
// or nil when none exist.
type SettingsProvider interface {
	Effective(ctx context.Context, ownerID uuid.UUID) (*models.AccountSettings, error)
}

type Config struct {
	DefaultFromAddress string
	DefaultFromName    string
	Timeout            time.Duration
}

type Option func(*Channel)

// WithSenderFactory replaces the SMTP transport.
func WithSenderFactory(f SenderFactory) Option {
	return func(c *Channel) { c.newSender = f }
}

type Channel struct {
	settings  SettingsProvider
	cfg       Config
	newSender SenderFactory
	logger    *slog.Logger
}

var _ notification.Channel = (*Channel)(nil)

func New(settings SettingsProvider, cfg Config, logger *slog.Logger, opts ...Option) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Channel{
		settings:  settings,
		cfg:       cfg,
		newSender: NewSMTPSender,
		logger:    logger.With("channel", Name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Name() string  { return Name }
func (c *Channel) Priority() int { return 0 }

func (c *Channel) CheckRequirements(ctx context.Context, ownerID uuid.UUID) bool {
	settings, err := c.settings.Effective(ctx, ownerID)
	if err != nil {
		c.logger.Warn("load account settings", "owner_id", ownerID.String(), "error", err)
		return false
	}
	return settings.HasSMTPServer()
}

func (c *Channel) RequirementsMessage() string {
	return "Configure an SMTP host and port in account settings to send email notifications."
}

func (c *Channel) ConfigSchema() notification.ConfigSchema {
	return notification.ConfigSchema{
		Target: &notification.SchemaField{
			Name:  "target",
			Label: "Recipient",
			Type:  notification.FieldEmail,
			Help:  "Defaults to the form owner's email address.",
		},
		Options: []notification.SchemaField{
			{Name: "subject", Label: "Subject", Type: notification.FieldString, Rules: "max=200"},
			{Name: "reply_to_field", Label: "Reply-To field", Type: notification.FieldString, Rules: "max=100",
				Help: "Name of the submitted field holding the visitor's email address."},
		},
	}
}

func (c *Channel) Trigger(ctx context.Context, submission *models.FormSubmission, settings *models.NotificationSettings) error {
	form := submission.Form
	if form == nil {
		return queue.Permanent(fmt.Errorf("submission %d has no form", submission.ID))
	}

	account, err := c.settings.Effective(ctx, form.OwnerID)
	if err != nil {
		return fmt.Errorf("load account settings: %w", err)
	}
	if !account.HasSMTPServer() {
		return fmt.Errorf("smtp server is not configured")
	}

	msg, err := c.Build(submission, settings, account)
	if err != nil {
		return err
	}
	mailMsg, err := msg.toMsg()
	if err != nil {
		return queue.Permanent(err)
	}

	sender, err := c.newSender(account, c.cfg.Timeout)
	if err != nil {
		return err
	}

	log := c.logger.With("form_id", form.ID, "submission_id", submission.ID, "to", msg.To)
	log.Info("sending email notification", "smtp_host", deref(account.SMTPHost))
	if err := sender.Send(ctx, mailMsg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	log.Info("email notification sent")
	return nil
}

// Build renders the notification message without sending it.
func (c *Channel) Build(submission *models.FormSubmission, settings *models.NotificationSettings, account *models.AccountSettings) (*Message, error) {
	form := submission.Form

	to := settings.TargetValue()
	if to == "" && form.Owner != nil {
		to = form.Owner.Email
	}
	if to == "" {
		return nil, queue.Permanent(fmt.Errorf("form %d: %w", form.ID, ErrNoRecipient))
	}
	if _, err := netmail.ParseAddress(to); err != nil {
		return nil, queue.Permanent(fmt.Errorf("invalid recipient %q: %w", to, err))
	}

	text, html, err := renderBodies(form.Name, submission)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		FromAddress: c.cfg.DefaultFromAddress,
		FromName:    c.cfg.DefaultFromName,
		To:          to,
		ReplyTo:     replyTo(submission, settings),
		Subject:     settings.StringOption("subject", "New submission for "+form.Name),
		Text:        text,
		HTML:        html,
	}
	if account != nil {
		if addr := deref(account.EmailFromAddress); addr != "" {
			msg.FromAddress = addr
		}
		if name := deref(account.EmailFromName); name != "" {
			msg.FromName = name
		}
	}
	return msg, nil
}

// replyTo reads the visitor address from the configured payload field.
// Missing or malformed values are ignored.
func replyTo(submission *models.FormSubmission, settings *models.NotificationSettings) string {
	field := settings.StringOption("reply_to_field", "")
	if field == "" {
		return ""
	}
	value, ok := submission.Payload[field].(string)
	if !ok {
		return ""
	}
	value = strings.TrimSpace(value)
	if _, err := netmail.ParseAddress(value); err != nil {
		return ""
	}
	return value
}
