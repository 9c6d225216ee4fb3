// Package server builds the fiber application: middleware, handlers and
// routes on top of a migrated database.
package server

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/config"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/routes"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/worker"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

// New wires services and handlers around rt, which owns the channel
// registry and the queue store shared with the worker.
func New(cfg *config.Config, db *gorm.DB, rt *worker.Runtime, logger *slog.Logger) *fiber.App {
	if logger == nil {
		logger = slog.Default()
	}

	authService := services.NewAuthService(db, cfg)
	formService := services.NewFormService(db)
	settingsService := services.NewNotificationSettingsService(db, rt.Registry)

	h := routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, db),
		Health:        handlers.NewHealthHandler(db, rt.Registry, rt.Store),
		Endpoint:      handlers.NewEndpointHandler(formService, rt.Submissions, cfg.SuccessURL, logger),
		Forms:         handlers.NewFormHandler(formService),
		Submissions:   handlers.NewSubmissionHandler(rt.Submissions),
		Notifications: handlers.NewNotificationHandler(settingsService),
		Account:       handlers.NewAccountSettingsHandler(rt.Accounts),
		Queue:         handlers.NewQueueHandler(rt.Store),
	}

	app := fiber.New(fiber.Config{
		AppName:      "formrelay",
		BodyLimit:    cfg.BodyLimit,
		ErrorHandler: ErrorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		// Multipart bodies are parsed by the endpoint handler, which keeps
		// unparseable ones as raw text instead of rejecting the request.
		DisablePreParseMultipartForm: true,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		return c.Next()
	})

	routes.Setup(app, cfg, db, h)
	return app
}

// ErrorHandler renders errors that escaped a handler. Details of 5xx
// errors are logged, not returned.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= fiber.StatusInternalServerError {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{Error: true, Message: message})
}
