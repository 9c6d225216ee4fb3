package handlers

import (
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type AccountSettingsHandler struct {
	accountService *services.AccountSettingsService
}

func NewAccountSettingsHandler(accountService *services.AccountSettingsService) *AccountSettingsHandler {
	return &AccountSettingsHandler{accountService: accountService}
}

func (h *AccountSettingsHandler) Get(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	resp, err := h.accountService.Get(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "Failed to fetch account settings")
	}
	return c.JSON(resp)
}

func (h *AccountSettingsHandler) Update(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req dto.AccountSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.accountService.Update(c.UserContext(), userID, &req)
	if err != nil {
		return respondError(c, err, "Failed to save account settings")
	}
	return c.JSON(resp)
}
