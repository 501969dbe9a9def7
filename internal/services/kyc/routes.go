package kyc

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
	"github.com/rajivgeraev/barter-api/internal/models"
)

// SetupRoutes настраивает маршруты для проверки личности
func (s *KYCService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/kyc")
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Post("/", s.SubmitVerification)
	api.Get("/me", s.GetMyVerification)

	// Модерация
	admin := api.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.Get("/pending", s.GetPendingVerifications)
	admin.Put("/:id", s.ReviewVerification)
}
