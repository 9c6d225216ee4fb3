package handlers

import (
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	settingsService *services.NotificationSettingsService
}

func NewNotificationHandler(settingsService *services.NotificationSettingsService) *NotificationHandler {
	return &NotificationHandler{settingsService: settingsService}
}

// Channels lists the registered channels with their requirement status for
// the caller.
func (h *NotificationHandler) Channels(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	return c.JSON(fiber.Map{"data": h.settingsService.ChannelStatus(c.UserContext(), userID)})
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	settings, err := h.settingsService.List(c.UserContext(), userID, formID)
	if err != nil {
		return respondError(c, err, "Failed to fetch notification settings")
	}
	return c.JSON(fiber.Map{"data": settings})
}

func (h *NotificationHandler) Upsert(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	var req dto.UpsertNotificationSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	settings, err := h.settingsService.Upsert(c.UserContext(), userID, formID, c.Params("type"), &req)
	if err != nil {
		return respondError(c, err, "Failed to save notification settings")
	}
	return c.JSON(settings)
}
