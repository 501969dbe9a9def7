package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const escrowColumns = `id, trade_proposal_id, payer_id, receiver_id, amount, currency, status,
	payment_method, payment_reference, dispute_reason, funded_at, released_at, refunded_at,
	version, created_at, updated_at`

// EscrowStatusUpdate описывает условное изменение статуса эскроу
type EscrowStatusUpdate struct {
	ID               uuid.UUID
	From             models.EscrowStatus
	To               models.EscrowStatus
	Version          int64
	PaymentReference *string
	DisputeReason    *string
	FundedAt         *time.Time
	ReleasedAt       *time.Time
	RefundedAt       *time.Time
	Now              time.Time
}

// InsertEscrow сохраняет новую эскроу-транзакцию
func InsertEscrow(ctx context.Context, q sqlx.ExtContext, e *models.EscrowTransaction) error {
	_, err := exec(ctx, q, `
		INSERT INTO escrow_transactions (`+escrowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TradeProposalID, e.PayerID, e.ReceiverID, e.Amount, e.Currency, e.Status,
		e.PaymentMethod, e.PaymentReference, e.DisputeReason, e.FundedAt, e.ReleasedAt, e.RefundedAt,
		e.Version, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения эскроу: %w", err)
	}
	return nil
}

// GetEscrow возвращает эскроу-транзакцию по ID
func GetEscrow(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.EscrowTransaction, error) {
	var e models.EscrowTransaction
	if err := get(ctx, q, &e, `SELECT `+escrowColumns+` FROM escrow_transactions WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEscrowsForUser возвращает эскроу, где пользователь плательщик или получатель
func ListEscrowsForUser(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, status models.EscrowStatus, limit, offset int) ([]models.EscrowTransaction, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_transactions WHERE (payer_id = ? OR receiver_id = ?)`
	args := []interface{}{userID, userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	escrows := []models.EscrowTransaction{}
	if err := selectAll(ctx, q, &escrows, query, args...); err != nil {
		return nil, fmt.Errorf("ошибка получения эскроу: %w", err)
	}
	return escrows, nil
}

// UpdateEscrowStatus применяет переход статуса с проверкой версии
func UpdateEscrowStatus(ctx context.Context, q sqlx.ExtContext, u EscrowStatusUpdate) error {
	return execCAS(ctx, q, `
		UPDATE escrow_transactions SET
			status = ?,
			payment_reference = COALESCE(?, payment_reference),
			dispute_reason = COALESCE(?, dispute_reason),
			funded_at = COALESCE(?, funded_at),
			released_at = COALESCE(?, released_at),
			refunded_at = COALESCE(?, refunded_at),
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND status = ? AND version = ?`,
		u.To, u.PaymentReference, u.DisputeReason, u.FundedAt, u.ReleasedAt, u.RefundedAt, u.Now.UTC(),
		u.ID, u.From, u.Version,
	)
}
