package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/wneessen/go-mail"
)

// Message is a rendered notification email before it becomes a mail.Msg.
type Message struct {
	FromName    string
	FromAddress string
	To          string
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
}

type answer struct {
	Key   string
	Value string
}

type bodyData struct {
	FormName    string
	SubmittedAt string
	Answers     []answer
}

var textBody = template.Must(template.New("text").Parse(
	`New submission for {{.FormName}}
Received {{.SubmittedAt}}
{{range .Answers}}
{{.Key}}:
{{.Value}}
{{end}}`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(
	`<!DOCTYPE html>
<html><body>
<h2>New submission for {{.FormName}}</h2>
<p>Received {{.SubmittedAt}}</p>
<table cellpadding="6" cellspacing="0" border="1">
{{range .Answers}}<tr><th align="left">{{.Key}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
</body></html>
`))

// answers flattens the payload into key order. Lists are joined with ", "
// and nested objects are rendered as JSON.
func answers(payload map[string]any) []answer {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]answer, 0, len(keys))
	for _, k := range keys {
		out = append(out, answer{Key: k, Value: formatValue(payload[k])})
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

func renderBodies(formName string, submission *models.FormSubmission) (string, string, error) {
	submittedAt := submission.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = submission.CreatedAt
	}
	data := bodyData{
		FormName:    formName,
		SubmittedAt: submittedAt.UTC().Format(time.RFC1123),
		Answers:     answers(submission.Payload),
	}

	var text, html bytes.Buffer
	if err := textBody.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("render text body: %w", err)
	}
	if err := htmlBody.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render html body: %w", err)
	}
	return text.String(), html.String(), nil
}

// toMsg converts m into a go-mail message.
func (m *Message) toMsg() (*mail.Msg, error) {
	msg := mail.NewMsg()
	if m.FromName != "" {
		if err := msg.FromFormat(m.FromName, m.FromAddress); err != nil {
			return nil, fmt.Errorf("set from: %w", err)
		}
	} else if err := msg.From(m.FromAddress); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	if m.ReplyTo != "" {
		if err := msg.ReplyTo(m.ReplyTo); err != nil {
			return nil, fmt.Errorf("set reply-to: %w", err)
		}
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, m.HTML)
	return msg, nil
}
