package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
)

// Publisher отправляет уведомление в realtime-канал пользователя
type Publisher interface {
	PublishNotification(userID string, n models.Notification)
}

// Alerter ставит в очередь внешнее оповещение (Telegram)
type Alerter interface {
	EnqueueTelegramAlert(ctx context.Context, chatID int64, n models.Notification) error
}

// NotificationSink превращает событие outbox в строку notifications,
// пушит ее подписчикам и при наличии ставит Telegram-оповещение
type NotificationSink struct {
	db        *db.DB
	publisher Publisher
	alerter   Alerter
}

// NewNotificationSink создает sink уведомлений. publisher и alerter могут быть nil.
func NewNotificationSink(database *db.DB, publisher Publisher, alerter Alerter) *NotificationSink {
	return &NotificationSink{db: database, publisher: publisher, alerter: alerter}
}

// Deliver реализует Sink
func (s *NotificationSink) Deliver(ctx context.Context, ev models.OutboxEvent) error {
	var payload models.NotificationPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decoding outbox payload: %w", err)
	}

	n := models.Notification{
		ID:            ev.ID,
		UserID:        ev.RecipientID,
		Type:          ev.EventType,
		Title:         payload.Title,
		Message:       payload.Message,
		ReferenceID:   payload.ReferenceID,
		ReferenceType: payload.ReferenceType,
		CreatedAt:     ev.CreatedAt,
	}

	inserted, err := db.InsertNotification(ctx, s.db, &n)
	if err != nil {
		return err
	}

	// Подписчики сами отбрасывают повторы по ID
	if s.publisher != nil {
		s.publisher.PublishNotification(n.UserID.String(), n)
	}

	if inserted && s.alerter != nil {
		s.alert(ctx, n)
	}
	return nil
}

func (s *NotificationSink) alert(ctx context.Context, n models.Notification) {
	profile, err := db.GetProfile(ctx, s.db, n.UserID)
	if err != nil {
		log.Warnf("Не удалось получить профиль %s для оповещения: %v", n.UserID, err)
		return
	}
	if profile.TelegramID == 0 {
		return
	}
	if err := s.alerter.EnqueueTelegramAlert(ctx, profile.TelegramID, n); err != nil {
		log.Warnf("Не удалось поставить Telegram-оповещение %s в очередь: %v", n.ID, err)
	}
}
