package review

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API отзывов
func (s *ReviewService) SetupRoutes(app *fiber.App) {
	// Публичный список отзывов о пользователе
	app.Get("/api/users/:id/reviews", s.GetUserReviews)

	api := app.Group("/api/reviews")
	api.Use(middleware.AuthMiddleware(s.jwtService))
	api.Post("/", s.CreateReview)
}
