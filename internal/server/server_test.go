package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/config"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/testutil"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/worker"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:           "test-secret",
		JWTAccessExpiry:     15 * time.Minute,
		JWTRefreshExpiry:    time.Hour,
		CORSOrigins:         "*",
		BodyLimit:           1 << 20,
		SuccessURL:          "/e/success",
		SubmitPerMin:        100,
		AdminEmails:         "admin@example.com",
		AccountSettingsMode: config.AccountSettingsSingleton,
		MailFromAddress:     "no-reply@localhost",
		SMTPTimeout:         time.Second,
		WebhookTimeout:      time.Second,
	}
}

func newApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	return newAppWithConfig(t, testConfig())
}

func newAppWithConfig(t *testing.T, cfg *config.Config) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := worker.New(db, cfg, logger)
	if err != nil {
		t.Fatalf("worker.New() error = %v", err)
	}
	return New(cfg, db, rt, logger), db
}

func do(t *testing.T, app *fiber.App, method, path, token, contentType, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func register(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	resp := do(t, app, http.MethodPost, "/api/auth/register", "", fiber.MIMEApplicationJSON,
		`{"email":"`+email+`","password":"password123","full_name":"Test"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register status = %d, want %d", resp.StatusCode, fiber.StatusCreated)
	}
	var auth dto.AuthResponse
	decode(t, resp, &auth)
	return auth.AccessToken
}

func createForm(t *testing.T, app *fiber.App, token string) models.FormDefinition {
	t.Helper()
	resp := do(t, app, http.MethodPost, "/api/forms", token, fiber.MIMEApplicationJSON, `{"name":"Contact"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create form status = %d, want %d", resp.StatusCode, fiber.StatusCreated)
	}
	var form models.FormDefinition
	decode(t, resp, &form)
	return form
}

func lastSubmission(t *testing.T, db *gorm.DB) models.FormSubmission {
	t.Helper()
	var sub models.FormSubmission
	if err := db.Order("id DESC").First(&sub).Error; err != nil {
		t.Fatalf("load submission: %v", err)
	}
	return sub
}

func TestHealth(t *testing.T) {
	app, _ := newApp(t)
	resp := do(t, app, http.MethodGet, "/api/health", "", "", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	var health dto.HealthResponse
	decode(t, resp, &health)
	if health.Status != "ok" || health.Channels != 2 {
		t.Fatalf("health = %+v, want ok with 2 channels", health)
	}
}

func TestDashboardRequiresToken(t *testing.T) {
	app, _ := newApp(t)
	resp := do(t, app, http.MethodGet, "/api/forms", "", "", "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}

func TestSubmitURLEncoded(t *testing.T) {
	app, db := newApp(t)
	token := register(t, app, "owner@example.com")
	form := createForm(t, app, token)

	resp := do(t, app, http.MethodPost, "/e/"+form.UID.String(), "", fiber.MIMEApplicationForm,
		"name=Ada&tags=a&tags=b&single[]=x")
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/e/success" {
		t.Fatalf("Location = %q, want /e/success", loc)
	}

	sub := lastSubmission(t, db)
	if sub.FormID != form.ID {
		t.Fatalf("form_id = %d, want %d", sub.FormID, form.ID)
	}
	if sub.Payload["name"] != "Ada" {
		t.Fatalf("name = %v, want Ada", sub.Payload["name"])
	}
	tags, ok := sub.Payload["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %#v, want two values", sub.Payload["tags"])
	}
	single, ok := sub.Payload["single"].([]any)
	if !ok || len(single) != 1 {
		t.Fatalf("single = %#v, want one-element list", sub.Payload["single"])
	}

	var queued int64
	db.Model(&models.QueuedCommand{}).Count(&queued)
	if queued != 1 {
		t.Fatalf("queued commands = %d, want 1", queued)
	}
}

func TestSubmitJSON(t *testing.T) {
	app, db := newApp(t)
	token := register(t, app, "owner@example.com")
	form := createForm(t, app, token)

	resp := do(t, app, http.MethodPost, "/e/"+form.UID.String(), "", fiber.MIMEApplicationJSON, `{"email":"a@b.co","n":2}`)
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusSeeOther)
	}
	if got := lastSubmission(t, db).Payload["email"]; got != "a@b.co" {
		t.Fatalf("email = %v, want a@b.co", got)
	}

	resp = do(t, app, http.MethodPost, "/e/"+form.UID.String(), "", fiber.MIMEApplicationJSON, `[1,2]`)
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusSeeOther)
	}
	if got := lastSubmission(t, db).Payload["_raw"]; got != "[1,2]" {
		t.Fatalf("_raw = %v, want [1,2]", got)
	}
}

func TestSubmitMultipart(t *testing.T) {
	app, db := newApp(t)
	token := register(t, app, "owner@example.com")
	form := createForm(t, app, token)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("name", "Ada")
	fw, err := mw.CreateFormFile("cv", "cv.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("%PDF"))
	mw.Close()

	resp := do(t, app, http.MethodPost, "/e/"+form.UID.String(), "", mw.FormDataContentType(), body.String())
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusSeeOther)
	}
	sub := lastSubmission(t, db)
	if sub.Payload["name"] != "Ada" || sub.Payload["cv"] != "cv.pdf" {
		t.Fatalf("payload = %v, want name and file name", sub.Payload)
	}

	resp = do(t, app, http.MethodPost, "/e/"+form.UID.String(), "", "multipart/form-data; boundary=xyz", "not multipart at all")
	if resp.StatusCode != fiber.StatusSeeOther {
		t.Fatalf("malformed multipart status = %d, want %d", resp.StatusCode, fiber.StatusSeeOther)
	}
	if got := lastSubmission(t, db).Payload["_raw"]; got != "not multipart at all" {
		t.Fatalf("_raw = %v, want the raw body", got)
	}
}

func TestSubmitUnknownOrDisabledForm(t *testing.T) {
	app, _ := newApp(t)
	token := register(t, app, "owner@example.com")
	form := createForm(t, app, token)

	tests := []struct {
		name string
		uid  string
	}{
		{"malformed uid", "not-a-uuid"},
		{"unknown uid", "0190c1a4-0000-7000-8000-000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, app, http.MethodPost, "/e/"+tt.uid, "", fiber.MIMEApplicationForm, "a=b")
			if resp.StatusCode != fiber.StatusNotFound {
				t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
			}
		})
	}

	resp := do(t, app, http.MethodPut, "/api/forms/"+strconv.Itoa(int(form.ID)), token, fiber.MIMEApplicationJSON, `{"enabled":false}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("disable status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	resp = do(t, app, http.MethodPost, "/e/"+form.UID.String(), "", fiber.MIMEApplicationForm, "a=b")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("disabled form status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}
}

func TestFormOwnership(t *testing.T) {
	app, _ := newApp(t)
	owner := register(t, app, "owner@example.com")
	other := register(t, app, "other@example.com")
	form := createForm(t, app, owner)

	resp := do(t, app, http.MethodGet, "/api/forms/"+strconv.Itoa(int(form.ID)), other, "", "")
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}
	resp = do(t, app, http.MethodGet, "/api/forms/"+strconv.Itoa(int(form.ID))+"/submissions", other, "", "")
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("submissions status = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}
}

func TestNotificationSettingsValidation(t *testing.T) {
	app, _ := newApp(t)
	token := register(t, app, "owner@example.com")
	form := createForm(t, app, token)
	base := "/api/forms/" + strconv.Itoa(int(form.ID)) + "/notifications/"

	resp := do(t, app, http.MethodPut, base+"email", token, fiber.MIMEApplicationJSON, `{"enabled":true,"target":"not-an-email"}`)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusUnprocessableEntity)
	}
	var body dto.ErrorResponse
	decode(t, resp, &body)
	if len(body.Fields) == 0 {
		t.Fatalf("fields = %v, want at least one", body.Fields)
	}

	resp = do(t, app, http.MethodPut, base+"sms", token, fiber.MIMEApplicationJSON, `{"enabled":true}`)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unknown channel status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}

	resp = do(t, app, http.MethodPut, base+"email", token, fiber.MIMEApplicationJSON, `{"enabled":true,"target":"team@example.com"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("valid upsert status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
}

func TestAdminQueueAccess(t *testing.T) {
	app, _ := newApp(t)
	user := register(t, app, "owner@example.com")
	admin := register(t, app, "admin@example.com")

	resp := do(t, app, http.MethodGet, "/api/admin/queue", user, "", "")
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}
	resp = do(t, app, http.MethodGet, "/api/admin/queue", admin, "", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("admin status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	resp = do(t, app, http.MethodPost, "/api/admin/queue/999/retry", admin, "", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("retry status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}
}

func TestErrorHandlerHidesServerErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error { return io.ErrUnexpectedEOF })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatal(err)
	}
	var body dto.ErrorResponse
	decode(t, resp, &body)
	if resp.StatusCode != fiber.StatusInternalServerError || body.Message != "Internal server error" {
		t.Fatalf("got %d %q, want 500 with generic message", resp.StatusCode, body.Message)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil))
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &body)
	if resp.StatusCode != fiber.StatusTeapot || body.Message != "short and stout" {
		t.Fatalf("got %d %q, want 418 with message", resp.StatusCode, body.Message)
	}
}

func TestFieldsAddAndList(t *testing.T) {
	app, _ := newApp(t)
	token := register(t, app, "owner@example.com")
	form := createForm(t, app, token)
	base := "/api/forms/" + strconv.Itoa(int(form.ID)) + "/fields"

	for _, name := range []string{"email", "message"} {
		resp := do(t, app, http.MethodPost, base, token, fiber.MIMEApplicationJSON,
			`{"name":"`+name+`","label":"`+name+`","type":"text"}`)
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("add %s status = %d, want %d", name, resp.StatusCode, fiber.StatusCreated)
		}
	}

	resp := do(t, app, http.MethodGet, base, token, "", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	var body struct {
		Data []models.FormField `json:"data"`
	}
	decode(t, resp, &body)
	if len(body.Data) != 2 || body.Data[0].Name != "email" || body.Data[1].Position != 1 {
		t.Fatalf("fields = %+v, want email then message", body.Data)
	}
}

func TestSingletonAccountSettingsAreAdminOnly(t *testing.T) {
	app, _ := newApp(t)
	admin := register(t, app, "admin@example.com")
	stranger := register(t, app, "stranger@example.net")

	resp := do(t, app, http.MethodPut, "/api/settings/account", admin, fiber.MIMEApplicationJSON,
		`{"smtp_host":"smtp.company.com","smtp_port":587}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("admin update status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	resp = do(t, app, http.MethodPut, "/api/settings/account", stranger, fiber.MIMEApplicationJSON,
		`{"smtp_host":"smtp.other.net","smtp_port":25}`)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("non-admin update status = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}
	resp = do(t, app, http.MethodGet, "/api/settings/account", stranger, "", "")
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("non-admin get status = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}

	resp = do(t, app, http.MethodGet, "/api/settings/account", admin, "", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("admin get status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	var settings dto.AccountSettingsResponse
	decode(t, resp, &settings)
	if settings.SMTPHost == nil || *settings.SMTPHost != "smtp.company.com" {
		t.Fatalf("smtp_host = %v, want smtp.company.com", settings.SMTPHost)
	}
}

func TestPerOwnerAccountSettingsAreSelfService(t *testing.T) {
	cfg := testConfig()
	cfg.AccountSettingsMode = config.AccountSettingsPerOwner
	app, _ := newAppWithConfig(t, cfg)
	user := register(t, app, "owner@example.com")

	resp := do(t, app, http.MethodPut, "/api/settings/account", user, fiber.MIMEApplicationJSON,
		`{"smtp_host":"smtp.example.com","smtp_port":587}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	var settings dto.AccountSettingsResponse
	decode(t, resp, &settings)
	if settings.Mode != config.AccountSettingsPerOwner {
		t.Fatalf("mode = %q, want %q", settings.Mode, config.AccountSettingsPerOwner)
	}
}
