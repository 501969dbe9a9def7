package notification

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API уведомлений
func (s *NotificationService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/notifications")
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Get("/", s.GetNotifications)
	api.Get("/unread-count", s.GetUnreadCount)
	api.Post("/read-all", s.MarkAllNotificationsRead)
	api.Post("/:id/read", s.MarkNotificationRead)
	api.Delete("/:id", s.DeleteNotification)
}
