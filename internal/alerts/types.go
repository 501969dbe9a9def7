package alerts

import (
	"fmt"
	"time"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const (
	TaskTelegramNotification = "telegram:notification"

	QueueAlerts = "alerts"
)

// TelegramNotificationPayload - полезная нагрузка задачи отправки в Telegram
type TelegramNotificationPayload struct {
	NotificationID string    `json:"notification_id"`
	ChatID         int64     `json:"chat_id"`
	Text           string    `json:"text"`
	QueuedAt       time.Time `json:"queued_at"`
}

// FormatNotification собирает текст сообщения Telegram из уведомления
func FormatNotification(n models.Notification) string {
	if n.Message == "" {
		return n.Title
	}
	return fmt.Sprintf("%s\n\n%s", n.Title, n.Message)
}
