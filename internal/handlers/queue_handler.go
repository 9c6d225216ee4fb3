package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
	"github.com/gofiber/fiber/v2"
)

// QueueHandler exposes the command queue to administrators.
type QueueHandler struct {
	store *queue.Store
}

func NewQueueHandler(store *queue.Store) *QueueHandler {
	return &QueueHandler{store: store}
}

func (h *QueueHandler) List(c *fiber.Ctx) error {
	status := c.Query("status", "")
	switch status {
	case "", models.CommandStatusPending, models.CommandStatusLeased, models.CommandStatusSucceeded, models.CommandStatusDead:
	default:
		return errorJSON(c, fiber.StatusBadRequest, "Invalid status filter")
	}
	limit, offset := pagination(c)

	commands, total, err := h.store.List(c.UserContext(), status, limit, offset)
	if err != nil {
		return respondError(c, err, "Failed to fetch queue")
	}

	return c.JSON(fiber.Map{
		"data":   commands,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Retry puts a dead command back in the queue.
func (h *QueueHandler) Retry(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid command ID")
	}

	if err := h.store.Requeue(c.UserContext(), id, time.Now().UTC()); err != nil {
		return respondError(c, err, "Failed to requeue command")
	}
	return c.JSON(fiber.Map{"message": "Command requeued"})
}
