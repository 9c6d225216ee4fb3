package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/notification"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/queue"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}

// respondError maps service errors to HTTP responses. Unknown errors are
// logged and hidden behind fallback.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	var settingsErr *notification.ValidationError
	if errors.As(err, &settingsErr) {
		fields := make([]dto.FieldError, 0, len(settingsErr.Fields))
		for _, f := range settingsErr.Fields {
			fields = append(fields, dto.FieldError{Field: f.Field, Message: f.Message})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Error: true, Message: "Validation failed", Fields: fields,
		})
	}
	var structErrs validator.ValidationErrors
	if errors.As(err, &structErrs) {
		fields := make([]dto.FieldError, 0, len(structErrs))
		for _, f := range structErrs {
			fields = append(fields, dto.FieldError{Field: f.Field(), Message: "failed " + f.Tag() + " validation"})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Error: true, Message: "Validation failed", Fields: fields,
		})
	}

	switch {
	case errors.Is(err, services.ErrFormNotFound),
		errors.Is(err, services.ErrFieldNotFound),
		errors.Is(err, services.ErrSubmissionNotFound),
		errors.Is(err, services.ErrUnknownChannel),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, queue.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		return errorJSON(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrEmailTaken):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidForm),
		errors.Is(err, services.ErrInvalidField),
		errors.Is(err, services.ErrInvalidOrder),
		errors.Is(err, services.ErrInvalidSignup):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken):
		return errorJSON(c, fiber.StatusUnauthorized, err.Error())
	}

	slog.Error(fallback, "error", err, "path", c.Path())
	return errorJSON(c, fiber.StatusInternalServerError, fallback)
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(id), nil
}

// pagination reads limit and offset, capping limit at 100.
func pagination(c *fiber.Ctx) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
