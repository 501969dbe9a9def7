package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// OutboxChannel - канал LISTEN/NOTIFY, в который сообщается о новых событиях
const OutboxChannel = "outbox_events"

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, recipient_id, payload, status,
	attempts, next_attempt_at, locked_until, last_error, delivered_at, created_at`

// InsertOutboxEvent сохраняет событие в outbox. На PostgreSQL дополнительно
// отправляет pg_notify, который доставляется после фиксации транзакции.
func InsertOutboxEvent(ctx context.Context, q sqlx.ExtContext, ev *models.OutboxEvent) error {
	_, err := exec(ctx, q, `
		INSERT INTO outbox_events (`+outboxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AggregateType, ev.AggregateID, ev.EventType, ev.RecipientID, ev.Payload, ev.Status,
		ev.Attempts, ev.NextAttemptAt.UTC(), ev.LockedUntil, ev.LastError, ev.DeliveredAt, ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка записи события outbox: %w", err)
	}
	if isPostgres(q) {
		if _, err := exec(ctx, q, `SELECT pg_notify(?, ?)`, OutboxChannel, ev.ID.String()); err != nil {
			return fmt.Errorf("ошибка pg_notify: %w", err)
		}
	}
	return nil
}

// GetOutboxEvent возвращает событие outbox по ID
func GetOutboxEvent(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.OutboxEvent, error) {
	var ev models.OutboxEvent
	if err := get(ctx, q, &ev, `SELECT `+outboxColumns+` FROM outbox_events WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListDueOutboxEvents возвращает события, готовые к доставке
func ListDueOutboxEvents(ctx context.Context, q sqlx.ExtContext, now time.Time, limit int) ([]models.OutboxEvent, error) {
	events := []models.OutboxEvent{}
	err := selectAll(ctx, q, &events, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE status = 'pending' AND next_attempt_at <= ?
			AND (locked_until IS NULL OR locked_until <= ?)
		ORDER BY next_attempt_at, created_at
		LIMIT ?`, now.UTC(), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки событий outbox: %w", err)
	}
	return events, nil
}

// ClaimOutboxEvent захватывает событие на время lease. Возвращает false,
// если событие уже захвачено другим обработчиком.
func ClaimOutboxEvent(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, now, until time.Time) (bool, error) {
	n, err := exec(ctx, q, `
		UPDATE outbox_events SET locked_until = ?
		WHERE id = ? AND status = 'pending' AND (locked_until IS NULL OR locked_until <= ?)`,
		until.UTC(), id, now.UTC())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkOutboxDelivered отмечает событие доставленным
func MarkOutboxDelivered(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, attempts int, now time.Time) error {
	_, err := exec(ctx, q, `
		UPDATE outbox_events SET status = 'delivered', attempts = ?, delivered_at = ?, locked_until = NULL, last_error = ''
		WHERE id = ?`, attempts, now.UTC(), id)
	return err
}

// MarkOutboxRetry откладывает событие до следующей попытки
func MarkOutboxRetry(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, attempts int, next time.Time, lastErr string) error {
	_, err := exec(ctx, q, `
		UPDATE outbox_events SET attempts = ?, next_attempt_at = ?, locked_until = NULL, last_error = ?
		WHERE id = ?`, attempts, next.UTC(), lastErr, id)
	return err
}

// MarkOutboxDead переводит событие в статус dead после исчерпания попыток
func MarkOutboxDead(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, attempts int, lastErr string) error {
	_, err := exec(ctx, q, `
		UPDATE outbox_events SET status = 'dead', attempts = ?, locked_until = NULL, last_error = ?
		WHERE id = ?`, attempts, lastErr, id)
	return err
}

// CountOutboxByStatus возвращает число событий в каждом статусе
func CountOutboxByStatus(ctx context.Context, q sqlx.ExtContext) (map[models.OutboxStatus]int, error) {
	var rows []struct {
		Status models.OutboxStatus `db:"status"`
		Count  int                 `db:"count"`
	}
	if err := selectAll(ctx, q, &rows, `SELECT status, COUNT(*) AS count FROM outbox_events GROUP BY status`); err != nil {
		return nil, err
	}
	out := make(map[models.OutboxStatus]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
