package notification

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

// NotificationService отдает уведомления пользователя
type NotificationService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	now        func() time.Time
}

// NewNotificationService создает новый экземпляр NotificationService
func NewNotificationService(cfg *config.Config, database *db.DB) *NotificationService {
	return &NotificationService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		now:        time.Now,
	}
}

// List возвращает уведомления пользователя, новые первыми
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	return db.ListNotifications(ctx, s.db, userID, unreadOnly, limit, offset)
}

// UnreadCount возвращает число непрочитанных уведомлений
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return db.CountUnreadNotifications(ctx, s.db, userID)
}

// MarkRead отмечает уведомление прочитанным
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return db.MarkNotificationRead(ctx, s.db, userID, id, s.now())
}

// MarkAllRead отмечает все уведомления пользователя прочитанными
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return db.MarkAllNotificationsRead(ctx, s.db, userID, s.now())
}

// Delete удаляет уведомление пользователя
func (s *NotificationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return db.DeleteNotification(ctx, s.db, userID, id)
}

// GetNotifications возвращает уведомления текущего пользователя
func (s *NotificationService) GetNotifications(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	limit, offset := utils.Pagination(c)
	unreadOnly := c.Query("unread") == "true"

	ctx, cancel := db.GetContext()
	defer cancel()

	items, err := s.List(ctx, actor.ID, unreadOnly, limit, offset)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"notifications": items,
		"count":         len(items),
		"limit":         limit,
		"offset":        offset,
	})
}

// GetUnreadCount возвращает число непрочитанных уведомлений
func (s *NotificationService) GetUnreadCount(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	count, err := s.UnreadCount(ctx, actor.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// MarkNotificationRead отмечает одно уведомление прочитанным
func (s *NotificationService) MarkNotificationRead(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.MarkRead(ctx, actor.ID, id); err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// MarkAllNotificationsRead отмечает все уведомления прочитанными
func (s *NotificationService) MarkAllNotificationsRead(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	n, err := s.MarkAllRead(ctx, actor.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "updated": n})
}

// DeleteNotification удаляет уведомление
func (s *NotificationService) DeleteNotification(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.Delete(ctx, actor.ID, id); err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
