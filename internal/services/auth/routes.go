package auth

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// loginRateLimit ограничивает число попыток входа с одного IP в минуту
const loginRateLimit = 20

// SetupRoutes регистрирует маршруты в Fiber
func (s *AuthService) SetupRoutes(app *fiber.App) {
	auth := app.Group("/api/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:        loginRateLimit,
		Expiration: time.Minute,
	}))
	auth.Post("/telegram", s.TelegramAuthHandler)

	// Публичный профиль
	app.Get("/api/users/:id", s.GetPublicProfile)

	// Защищенные маршруты
	protected := app.Group("/api/profile")
	protected.Use(middleware.AuthMiddleware(s.jwtService))

	protected.Get("/", s.GetProfile)
	protected.Patch("/", s.UpdateProfile)
}
