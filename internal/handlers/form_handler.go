package handlers

import (
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type FormHandler struct {
	formService *services.FormService
}

func NewFormHandler(formService *services.FormService) *FormHandler {
	return &FormHandler{formService: formService}
}

func (h *FormHandler) List(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	forms, err := h.formService.List(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err, "Failed to fetch forms")
	}
	return c.JSON(fiber.Map{"data": forms, "total": len(forms)})
}

func (h *FormHandler) Create(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req dto.CreateFormRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	form, err := h.formService.Create(c.UserContext(), userID, &req)
	if err != nil {
		return respondError(c, err, "Failed to create form")
	}
	return c.Status(fiber.StatusCreated).JSON(form)
}

func (h *FormHandler) Get(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	form, err := h.formService.Get(c.UserContext(), userID, formID)
	if err != nil {
		return respondError(c, err, "Failed to fetch form")
	}
	return c.JSON(form)
}

func (h *FormHandler) Update(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	var req dto.UpdateFormRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	form, err := h.formService.Update(c.UserContext(), userID, formID, &req)
	if err != nil {
		return respondError(c, err, "Failed to update form")
	}
	return c.JSON(form)
}

func (h *FormHandler) Delete(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	if err := h.formService.Delete(c.UserContext(), userID, formID); err != nil {
		return respondError(c, err, "Failed to delete form")
	}
	return c.JSON(fiber.Map{"message": "Form deleted successfully"})
}

func (h *FormHandler) ListFields(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	form, err := h.formService.Get(c.UserContext(), userID, formID)
	if err != nil {
		return respondError(c, err, "Failed to fetch fields")
	}
	return c.JSON(fiber.Map{"data": form.Fields})
}

func (h *FormHandler) AddField(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	var req dto.CreateFieldRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	field, err := h.formService.AddField(c.UserContext(), userID, formID, &req)
	if err != nil {
		return respondError(c, err, "Failed to add field")
	}
	return c.Status(fiber.StatusCreated).JSON(field)
}

func (h *FormHandler) DeleteField(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}
	fieldID, err := paramID(c, "fieldId")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid field ID")
	}

	if err := h.formService.DeleteField(c.UserContext(), userID, formID, fieldID); err != nil {
		return respondError(c, err, "Failed to delete field")
	}
	return c.JSON(fiber.Map{"message": "Field deleted successfully"})
}

func (h *FormHandler) ReorderFields(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	formID, err := paramID(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid form ID")
	}

	var req dto.ReorderFieldsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	fields, err := h.formService.ReorderFields(c.UserContext(), userID, formID, req.FieldIDs)
	if err != nil {
		return respondError(c, err, "Failed to reorder fields")
	}
	return c.JSON(fiber.Map{"data": fields})
}
