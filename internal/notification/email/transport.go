package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/wneessen/go-mail"
)

// Sender delivers messages over one SMTP connection.
type Sender interface {
	Send(ctx context.Context, msgs ...*mail.Msg) error
}

// SenderFactory builds a Sender from the account's current SMTP settings.
type SenderFactory func(settings *models.AccountSettings, timeout time.Duration) (Sender, error)

type smtpSender struct {
	client *mail.Client
}

func (s *smtpSender) Send(ctx context.Context, msgs ...*mail.Msg) error {
	return s.client.DialAndSendWithContext(ctx, msgs...)
}

// NewSMTPSender is the default SenderFactory.
func NewSMTPSender(settings *models.AccountSettings, timeout time.Duration) (Sender, error) {
	if !settings.HasSMTPServer() {
		return nil, fmt.Errorf("smtp server is not configured")
	}

	opts := []mail.Option{
		mail.WithPort(*settings.SMTPPort),
		mail.WithTimeout(timeout),
	}
	switch strings.ToLower(deref(settings.MailerEncryption)) {
	case "ssl", "tls":
		opts = append(opts, mail.WithSSL())
	case "starttls":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if user := deref(settings.SMTPUser); user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(deref(settings.SMTPPassword)),
		)
	}

	client, err := mail.NewClient(*settings.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &smtpSender{client: client}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
