package handlers

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const rawPayloadKey = "_raw"

const successPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Thank you</title></head>
<body><h1>Thank you!</h1><p>Your submission has been received.</p></body></html>`

// EndpointHandler serves the public form endpoints that external sites post to.
type EndpointHandler struct {
	forms       *services.FormService
	submissions *services.SubmissionService
	successURL  string
	logger      *slog.Logger
}

func NewEndpointHandler(forms *services.FormService, submissions *services.SubmissionService, successURL string, logger *slog.Logger) *EndpointHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if successURL == "" {
		successURL = "/e/success"
	}
	return &EndpointHandler{forms: forms, submissions: submissions, successURL: successURL, logger: logger}
}

func (h *EndpointHandler) Submit(c *fiber.Ctx) error {
	uid, err := uuid.Parse(c.Params("uid"))
	if err != nil {
		return errorJSON(c, fiber.StatusNotFound, "Form not found")
	}

	form, err := h.forms.FindEnabledByUID(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, services.ErrFormNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "Form not found")
		}
		return respondError(c, err, "Failed to load form")
	}

	payload := parsePayload(c)

	submission, err := h.submissions.Save(c.UserContext(), form, payload)
	if err != nil {
		return respondError(c, err, "Failed to store submission")
	}
	h.logger.Info("submission received", "form_id", form.ID, "submission_id", submission.ID)

	target := h.successURL
	if form.RedirectURL != nil && *form.RedirectURL != "" {
		target = *form.RedirectURL
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}

func (h *EndpointHandler) Success(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.SendString(successPage)
}

// parsePayload turns the request body into a submission payload. Repeated
// keys become lists. Bodies that cannot be decoded, such as a JSON value
// that is not an object or a broken multipart body, are kept under _raw.
func parsePayload(c *fiber.Ctx) map[string]any {
	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	body := c.Body()

	switch {
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return rawPayload(body)
		}
		payload := map[string]any{}
		for key, values := range form.Value {
			for _, v := range values {
				addValue(payload, key, v)
			}
		}
		for key, files := range form.File {
			for _, f := range files {
				addValue(payload, key, f.Filename)
			}
		}
		return payload

	case strings.HasPrefix(contentType, fiber.MIMEApplicationForm):
		payload := map[string]any{}
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			addValue(payload, string(key), string(value))
		})
		return payload

	case len(body) == 0:
		return map[string]any{}
	}

	var decoded any
	if err := c.App().Config().JSONDecoder(body, &decoded); err == nil {
		if obj, ok := decoded.(map[string]any); ok {
			return obj
		}
	}
	return rawPayload(body)
}

func rawPayload(body []byte) map[string]any {
	return map[string]any{rawPayloadKey: string(body)}
}

// addValue stores v under key, turning repeated keys into lists. A trailing
// "[]" on the key is dropped and always yields a list.
func addValue(payload map[string]any, key, v string) {
	forceList := strings.HasSuffix(key, "[]")
	key = strings.TrimSuffix(key, "[]")

	switch existing := payload[key].(type) {
	case nil:
		if forceList {
			payload[key] = []any{v}
		} else {
			payload[key] = v
		}
	case []any:
		payload[key] = append(existing, v)
	default:
		payload[key] = []any{existing, v}
	}
}
