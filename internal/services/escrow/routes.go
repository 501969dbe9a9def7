package escrow

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API эскроу
func (s *EscrowService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/escrow")
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Post("/", s.CreateEscrow)
	api.Get("/", s.ListEscrows)
	api.Get("/:id", s.GetEscrow)
	api.Put("/:id/status", s.UpdateEscrow)
}
