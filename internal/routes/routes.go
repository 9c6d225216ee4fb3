package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/config"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Health        *handlers.HealthHandler
	Endpoint      *handlers.EndpointHandler
	Forms         *handlers.FormHandler
	Submissions   *handlers.SubmissionHandler
	Notifications *handlers.NotificationHandler
	Account       *handlers.AccountSettingsHandler
	Queue         *handlers.QueueHandler
}

func perIP(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})
}

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, h Handlers) {
	// Public form endpoints: submissions are rate limited per IP.
	e := app.Group("/e", middleware.PublicCORS())
	e.Get("/success", h.Endpoint.Success)
	e.Post("/:uid", perIP(cfg.SubmitPerMin), h.Endpoint.Submit)

	api := app.Group("/api", middleware.CORS(cfg))

	// General API rate limiter: 60 req/min per IP
	api.Use(perIP(60))

	api.Get("/health", h.Health.Check)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(perIP(10))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	jwt := middleware.JWTProtected(cfg)
	api.Post("/auth/logout", jwt, h.Auth.Logout)
	api.Get("/auth/me", jwt, h.Auth.Me)
	api.Delete("/auth/account", jwt, h.Auth.DeleteAccount)

	api.Get("/channels", jwt, h.Notifications.Channels)

	// Singleton mail settings are shared by every owner, so only admins
	// may see or change them. In per_owner mode each user manages their own.
	account := api.Group("/settings/account", jwt)
	if cfg.AccountSettingsMode != config.AccountSettingsPerOwner {
		account.Use(middleware.AdminRequired(db, cfg))
	}
	account.Get("/", h.Account.Get)
	account.Put("/", h.Account.Update)

	forms := api.Group("/forms", jwt)
	forms.Get("/", h.Forms.List)
	forms.Post("/", h.Forms.Create)
	forms.Get("/:id", h.Forms.Get)
	forms.Put("/:id", h.Forms.Update)
	forms.Delete("/:id", h.Forms.Delete)

	forms.Get("/:id/fields", h.Forms.ListFields)
	forms.Post("/:id/fields", h.Forms.AddField)
	forms.Put("/:id/fields/order", h.Forms.ReorderFields)
	forms.Delete("/:id/fields/:fieldId", h.Forms.DeleteField)

	forms.Get("/:id/notifications", h.Notifications.List)
	forms.Put("/:id/notifications/:type", h.Notifications.Upsert)

	forms.Get("/:id/submissions", h.Submissions.List)
	forms.Get("/:id/submissions/columns", h.Submissions.Columns)
	forms.Post("/:id/submissions/delete", h.Submissions.BulkDelete)
	forms.Get("/:id/submissions/:submissionId", h.Submissions.Get)
	forms.Post("/:id/submissions/:submissionId/resend", h.Submissions.Resend)

	admin := api.Group("/admin", jwt, middleware.AdminRequired(db, cfg))
	admin.Get("/queue", h.Queue.List)
	admin.Post("/queue/:id/retry", h.Queue.Retry)
}
