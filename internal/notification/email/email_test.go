package email

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

type fakeSettings struct {
	settings *models.AccountSettings
	err      error
	owners   []uuid.UUID
}

func (f *fakeSettings) Effective(_ context.Context, ownerID uuid.UUID) (*models.AccountSettings, error) {
	f.owners = append(f.owners, ownerID)
	return f.settings, f.err
}

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) Send(_ context.Context, msgs ...*mail.Msg) error {
	f.sent = append(f.sent, msgs...)
	return f.err
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func smtpSettings() *models.AccountSettings {
	return &models.AccountSettings{
		SMTPHost:         strPtr("smtp.example.com"),
		SMTPPort:         intPtr(587),
		EmailFromAddress: strPtr("forms@example.com"),
		EmailFromName:    strPtr("Acme Forms"),
	}
}

func newFixture() (*models.FormSubmission, *models.NotificationSettings) {
	owner := &models.User{ID: uuid.New(), Email: "owner@example.com"}
	form := &models.FormDefinition{ID: 3, Name: "Contact", OwnerID: owner.ID, Owner: owner}
	submission := &models.FormSubmission{
		ID:          11,
		FormID:      form.ID,
		Form:        form,
		SubmittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload: map[string]any{
			"message": "<b>hi</b>",
			"email":   "visitor@example.com",
			"topics":  []any{"sales", "support"},
		},
	}
	settings := &models.NotificationSettings{ID: 1, Type: Name, Enabled: true, FormID: form.ID}
	return submission, settings
}

func newChannel(provider SettingsProvider, sender Sender, logger *slog.Logger) *Channel {
	return New(provider, Config{DefaultFromAddress: "no-reply@localhost", DefaultFromName: "Formrelay"}, logger,
		WithSenderFactory(func(*models.AccountSettings, time.Duration) (Sender, error) { return sender, nil }))
}

func TestCheckRequirements(t *testing.T) {
	owner := uuid.New()
	tests := []struct {
		name     string
		settings *models.AccountSettings
		err      error
		want     bool
	}{
		{name: "configured", settings: smtpSettings(), want: true},
		{name: "no settings row", want: false},
		{name: "missing port", settings: &models.AccountSettings{SMTPHost: strPtr("smtp.example.com")}, want: false},
		{name: "empty host", settings: &models.AccountSettings{SMTPHost: strPtr(""), SMTPPort: intPtr(25)}, want: false},
		{name: "lookup error", err: errors.New("db down"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeSettings{settings: tt.settings, err: tt.err}
			c := newChannel(provider, &fakeSender{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
			if got := c.CheckRequirements(context.Background(), owner); got != tt.want {
				t.Fatalf("CheckRequirements = %v, want %v", got, tt.want)
			}
			if len(provider.owners) != 1 || provider.owners[0] != owner {
				t.Fatalf("settings looked up for %v, want %v", provider.owners, owner)
			}
		})
	}
}

func TestBuildDefaults(t *testing.T) {
	submission, settings := newFixture()
	c := newChannel(&fakeSettings{}, &fakeSender{}, nil)

	msg, err := c.Build(submission, settings, smtpSettings())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if msg.To != "owner@example.com" {
		t.Fatalf("To = %q, want owner fallback", msg.To)
	}
	if msg.Subject != "New submission for Contact" {
		t.Fatalf("Subject = %q", msg.Subject)
	}
	if msg.FromAddress != "forms@example.com" || msg.FromName != "Acme Forms" {
		t.Fatalf("From = %q <%s>, want account settings", msg.FromName, msg.FromAddress)
	}
	if msg.ReplyTo != "" {
		t.Fatalf("ReplyTo = %q, want empty without option", msg.ReplyTo)
	}

	emailIdx := strings.Index(msg.Text, "email:")
	messageIdx := strings.Index(msg.Text, "message:")
	topicsIdx := strings.Index(msg.Text, "topics:")
	if emailIdx < 0 || !(emailIdx < messageIdx && messageIdx < topicsIdx) {
		t.Fatalf("text body answers not sorted by key:\n%s", msg.Text)
	}
	if !strings.Contains(msg.Text, "sales, support") {
		t.Fatalf("text body missing joined list:\n%s", msg.Text)
	}
	if !strings.Contains(msg.HTML, "&lt;b&gt;hi&lt;/b&gt;") {
		t.Fatalf("html body not escaped:\n%s", msg.HTML)
	}
}

func TestBuildOptions(t *testing.T) {
	submission, settings := newFixture()
	settings.Target = strPtr("team@example.com")
	settings.Options = map[string]any{"subject": "Lead!", "reply_to_field": "email", "ignored": true}
	c := newChannel(&fakeSettings{}, &fakeSender{}, nil)

	msg, err := c.Build(submission, settings, &models.AccountSettings{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if msg.To != "team@example.com" || msg.Subject != "Lead!" || msg.ReplyTo != "visitor@example.com" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.FromAddress != "no-reply@localhost" || msg.FromName != "Formrelay" {
		t.Fatalf("From = %q <%s>, want config defaults", msg.FromName, msg.FromAddress)
	}
}

func TestBuildIgnoresInvalidReplyTo(t *testing.T) {
	submission, settings := newFixture()
	submission.Payload["email"] = "not an address"
	settings.Options = map[string]any{"reply_to_field": "email"}
	c := newChannel(&fakeSettings{}, &fakeSender{}, nil)

	msg, err := c.Build(submission, settings, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if msg.ReplyTo != "" {
		t.Fatalf("ReplyTo = %q, want empty", msg.ReplyTo)
	}
}

func TestBuildWithoutRecipientIsPermanent(t *testing.T) {
	submission, settings := newFixture()
	submission.Form.Owner = nil
	c := newChannel(&fakeSettings{}, &fakeSender{}, nil)

	_, err := c.Build(submission, settings, nil)
	if !errors.Is(err, ErrNoRecipient) || !queue.IsPermanent(err) {
		t.Fatalf("Build err = %v, want permanent ErrNoRecipient", err)
	}
}

func TestTriggerSendsOneMessage(t *testing.T) {
	submission, settings := newFixture()
	sender := &fakeSender{}
	var logs bytes.Buffer
	c := newChannel(&fakeSettings{settings: smtpSettings()}, sender, slog.New(slog.NewTextHandler(&logs, nil)))

	if err := c.Trigger(context.Background(), submission, settings); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	to := sender.sent[0].GetTo()
	if len(to) != 1 || to[0].Address != "owner@example.com" {
		t.Fatalf("To = %v", to)
	}
	if subject := sender.sent[0].GetGenHeader(mail.HeaderSubject); len(subject) != 1 || subject[0] != "New submission for Contact" {
		t.Fatalf("Subject = %v", subject)
	}
	if !strings.Contains(logs.String(), "sending email notification") || !strings.Contains(logs.String(), "email notification sent") {
		t.Fatalf("logs = %q", logs.String())
	}
}

func TestTriggerReturnsTransportError(t *testing.T) {
	submission, settings := newFixture()
	refused := errors.New("connection refused")
	c := newChannel(&fakeSettings{settings: smtpSettings()}, &fakeSender{err: refused}, nil)

	err := c.Trigger(context.Background(), submission, settings)
	if !errors.Is(err, refused) {
		t.Fatalf("Trigger err = %v, want %v", err, refused)
	}
	if queue.IsPermanent(err) {
		t.Fatal("transport errors must stay retryable")
	}
}

func TestNewSMTPSenderRequiresServer(t *testing.T) {
	if _, err := NewSMTPSender(&models.AccountSettings{}, time.Second); err == nil {
		t.Fatal("NewSMTPSender without host succeeded")
	}
	if _, err := NewSMTPSender(smtpSettings(), time.Second); err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
}

func TestConfigSchemaValidatesTarget(t *testing.T) {
	schema := New(&fakeSettings{}, Config{}, nil).ConfigSchema()
	if err := schema.Validate(strPtr("bad"), nil); err == nil {
		t.Fatal("Validate accepted an invalid email target")
	}
	if err := schema.Validate(nil, map[string]any{"subject": "Hi"}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
