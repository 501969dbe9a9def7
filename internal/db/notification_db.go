package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const notificationColumns = `id, user_id, type, title, message, reference_id, reference_type, read, read_at, created_at`

// InsertNotification сохраняет уведомление. Повторная вставка с тем же ID
// ничего не меняет; возвращает true, если строка была создана.
func InsertNotification(ctx context.Context, q sqlx.ExtContext, n *models.Notification) (bool, error) {
	inserted, err := exec(ctx, q, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.ReferenceID, n.ReferenceType, n.Read, n.ReadAt, n.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения уведомления: %w", err)
	}
	return inserted > 0, nil
}

// GetNotification возвращает уведомление по ID
func GetNotification(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	if err := get(ctx, q, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotifications возвращает уведомления пользователя, новые первыми
func ListNotifications(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []interface{}{userID}
	if unreadOnly {
		query += ` AND read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	out := []models.Notification{}
	if err := selectAll(ctx, q, &out, query, args...); err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений: %w", err)
	}
	return out, nil
}

// CountUnreadNotifications возвращает число непрочитанных уведомлений
func CountUnreadNotifications(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (int, error) {
	var count int
	err := get(ctx, q, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = ?`, userID, false)
	return count, err
}

// MarkNotificationRead отмечает уведомление пользователя прочитанным
func MarkNotificationRead(ctx context.Context, q sqlx.ExtContext, userID, id uuid.UUID, now time.Time) error {
	n, err := exec(ctx, q, `
		UPDATE notifications SET read = ?, read_at = COALESCE(read_at, ?)
		WHERE id = ? AND user_id = ?`, true, now.UTC(), id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead отмечает все уведомления пользователя прочитанными
func MarkAllNotificationsRead(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, now time.Time) (int64, error) {
	return exec(ctx, q, `
		UPDATE notifications SET read = ?, read_at = ?
		WHERE user_id = ? AND read = ?`, true, now.UTC(), userID, false)
}

// DeleteNotification удаляет уведомление пользователя
func DeleteNotification(ctx context.Context, q sqlx.ExtContext, userID, id uuid.UUID) error {
	n, err := exec(ctx, q, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
