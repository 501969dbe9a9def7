package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
)

// Notice описывает уведомление, которое нужно доставить пользователю
type Notice struct {
	AggregateType string
	AggregateID   uuid.UUID
	RecipientID   uuid.UUID
	Type          models.NotificationType
	Title         string
	Message       string
}

// Waker будит диспетчер после фиксации транзакции с новыми событиями
type Waker interface {
	Wake()
}

// Enqueue записывает уведомления в outbox в рамках транзакции изменения.
// ID события становится ID уведомления, что делает доставку идемпотентной.
func Enqueue(ctx context.Context, tx sqlx.ExtContext, now time.Time, notices ...Notice) error {
	now = now.UTC()
	for _, n := range notices {
		refID := n.AggregateID
		payload, err := json.Marshal(models.NotificationPayload{
			Title:         n.Title,
			Message:       n.Message,
			ReferenceID:   &refID,
			ReferenceType: n.AggregateType,
		})
		if err != nil {
			return err
		}
		ev := &models.OutboxEvent{
			ID:            uuid.New(),
			AggregateType: n.AggregateType,
			AggregateID:   n.AggregateID,
			EventType:     n.Type,
			RecipientID:   n.RecipientID,
			Payload:       types.JSONText(payload),
			Status:        models.OutboxStatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
		}
		if err := db.InsertOutboxEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return nil
}
