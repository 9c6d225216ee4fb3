package handlers

import (
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type SubmissionHandler struct {
	submissionService *services.SubmissionService
}

func NewSubmissionHandler(submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

func (h *SubmissionHandler) List(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}
	limit, offset := pagination(c)

	submissions, total, err := h.submissionService.List(c.UserContext(), userID, formID, limit, offset)
	if err != nil {
		return respondError(c, err, "Failed to fetch submissions")
	}

	return c.JSON(fiber.Map{
		"data":   submissions,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *SubmissionHandler) Get(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}
	submissionID, err := paramID(c, "submissionId")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid submission ID")
	}

	submission, err := h.submissionService.Get(c.UserContext(), userID, formID, submissionID)
	if err != nil {
		return respondError(c, err, "Failed to fetch submission")
	}
	return c.JSON(submission)
}

func (h *SubmissionHandler) BulkDelete(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	var req dto.BulkDeleteSubmissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	deleted, err := h.submissionService.BulkDelete(c.UserContext(), userID, formID, req.IDs)
	if err != nil {
		return respondError(c, err, "Failed to delete submissions")
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

func (h *SubmissionHandler) Resend(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}
	submissionID, err := paramID(c, "submissionId")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid submission ID")
	}

	cmd, err := h.submissionService.Resend(c.UserContext(), userID, formID, submissionID)
	if err != nil {
		return respondError(c, err, "Failed to queue notifications")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "Notifications queued", "command_id": cmd.ID})
}

func (h *SubmissionHandler) Columns(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	keys, priority, err := h.submissionService.Columns(c.UserContext(), userID, formID)
	if err != nil {
		return respondError(c, err, "Failed to fetch columns")
	}
	return c.JSON(dto.SubmissionColumnsResponse{Keys: keys, Priority: priority})
}
