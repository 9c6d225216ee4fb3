package middleware

import (
	"slices"
	"strings"

	"github.com/ahmetcoskunkizilkaya/formrelay/internal/config"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/models"
	"github.com/ahmetcoskunkizilkaya/formrelay/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminRequired allows a request when:
// 1. the token's email is listed in ADMIN_EMAILS
// 2. the token carries ROLE_ADMIN
// 3. the stored user has ROLE_ADMIN (roles granted after the token was issued)
func AdminRequired(db *gorm.DB, cfg *config.Config) fiber.Handler {
	adminEmails := cfg.AdminEmailList()

	return func(c *fiber.Ctx) error {
		userID, err := tenant.GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		email := strings.ToLower(tenant.GetEmail(c))
		if email != "" && slices.Contains(adminEmails, email) {
			return c.Next()
		}
		if slices.Contains(tenant.GetRoles(c), models.RoleAdmin) {
			return c.Next()
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, "id = ?", userID).Error; err == nil {
			if user.HasRole(models.RoleAdmin) {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}
