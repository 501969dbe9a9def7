package product

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API товаров
func (s *ProductService) SetupRoutes(app *fiber.App) {
	// Публичные маршруты
	app.Get("/api/products", s.GetPublicProducts)
	app.Get("/api/users/:id/products", s.GetUserProducts)

	// Защищенные маршруты (требуют авторизации)
	api := app.Group("/api/products")
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Post("/create", s.CreateProduct)
	api.Get("/my", s.GetMyProducts)
	api.Get("/:id", s.GetProduct)
	api.Put("/:id", s.UpdateProduct)
	api.Delete("/:id", s.ArchiveProduct)
}
