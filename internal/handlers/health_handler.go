package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/database"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db       *gorm.DB
	registry *notification.Registry
	queue    *queue.Store
}

func NewHealthHandler(db *gorm.DB, registry *notification.Registry, store *queue.Store) *HealthHandler {
	return &HealthHandler{db: db, registry: registry, queue: store}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "ok"
	dbStatus := "ok"
	if err := database.Ping(h.db); err != nil {
		status = "degraded"
		dbStatus = "unhealthy: " + err.Error()
	}

	counts, err := h.queue.CountByStatus(c.UserContext())
	if err != nil {
		counts = map[string]int64{}
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(dto.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Channels:  h.registry.Len(),
		Queue: map[string]int64{
			models.CommandStatusPending: counts[models.CommandStatusPending],
			models.CommandStatusLeased:  counts[models.CommandStatusLeased],
			models.CommandStatusDead:    counts[models.CommandStatusDead],
		},
	})
}
