package shipping

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API отправлений
func (s *ShippingService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/shipping")
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Post("/", s.CreateShipment)
	api.Get("/trade/:tradeId", s.GetTradeShipments)
	api.Get("/:id", s.GetShipment)
	api.Put("/:id/status", s.UpdateShipmentStatus)
}
