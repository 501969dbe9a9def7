package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const shippingColumns = `id, trade_proposal_id, sender_id, receiver_id, carrier, tracking_number, address,
	status, shipped_at, delivered_at, version, created_at, updated_at`

// ShippingStatusUpdate описывает условное изменение статуса отправления
type ShippingStatusUpdate struct {
	ID             uuid.UUID
	From           models.ShippingStatus
	To             models.ShippingStatus
	Version        int64
	TrackingNumber *string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	Now            time.Time
}

// InsertShippingOrder сохраняет отправление
func InsertShippingOrder(ctx context.Context, q sqlx.ExtContext, s *models.ShippingOrder) error {
	_, err := exec(ctx, q, `
		INSERT INTO shipping_orders (`+shippingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TradeProposalID, s.SenderID, s.ReceiverID, s.Carrier, s.TrackingNumber, s.Address,
		s.Status, s.ShippedAt, s.DeliveredAt, s.Version, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения отправления: %w", err)
	}
	return nil
}

// GetShippingOrder возвращает отправление по ID
func GetShippingOrder(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.ShippingOrder, error) {
	var s models.ShippingOrder
	if err := get(ctx, q, &s, `SELECT `+shippingColumns+` FROM shipping_orders WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListShippingOrdersForTrade возвращает отправления по обмену
func ListShippingOrdersForTrade(ctx context.Context, q sqlx.ExtContext, tradeID uuid.UUID) ([]models.ShippingOrder, error) {
	out := []models.ShippingOrder{}
	err := selectAll(ctx, q, &out, `
		SELECT `+shippingColumns+` FROM shipping_orders
		WHERE trade_proposal_id = ? ORDER BY created_at`, tradeID)
	return out, err
}

// UpdateShippingStatus применяет переход статуса с проверкой версии
func UpdateShippingStatus(ctx context.Context, q sqlx.ExtContext, u ShippingStatusUpdate) error {
	return execCAS(ctx, q, `
		UPDATE shipping_orders SET
			status = ?,
			tracking_number = COALESCE(?, tracking_number),
			shipped_at = COALESCE(?, shipped_at),
			delivered_at = COALESCE(?, delivered_at),
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND status = ? AND version = ?`,
		u.To, u.TrackingNumber, u.ShippedAt, u.DeliveredAt, u.Now.UTC(),
		u.ID, u.From, u.Version)
}
