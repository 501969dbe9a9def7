package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const tradeColumns = `id, proposer_id, receiver_id, proposer_product_id, receiver_product_id, message,
	cash_difference, cash_from, status, response_message, responded_at, completed_at, expires_at,
	version, created_at, updated_at`

// TradeFilter задает фильтры списка обменов пользователя
type TradeFilter struct {
	UserID    uuid.UUID
	Direction string // all, incoming, outgoing
	Status    models.TradeStatus
	Limit     int
	Offset    int
}

// TradeStatusUpdate описывает условное изменение статуса обмена
type TradeStatusUpdate struct {
	ID              uuid.UUID
	From            models.TradeStatus
	To              models.TradeStatus
	Version         int64
	ResponseMessage *string
	RespondedAt     *time.Time
	CompletedAt     *time.Time
	Now             time.Time
}

// InsertTradeProposal сохраняет новое предложение обмена. Второе ожидающее
// предложение с той же парой товаров возвращает ErrConflict.
func InsertTradeProposal(ctx context.Context, q sqlx.ExtContext, t *models.TradeProposal) error {
	n, err := exec(ctx, q, `
		INSERT INTO trade_proposals (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		t.ID, t.ProposerID, t.ReceiverID, t.ProposerProductID, t.ReceiverProductID, t.Message,
		t.CashDifference, t.CashFrom, t.Status, t.ResponseMessage, t.RespondedAt, t.CompletedAt, t.ExpiresAt.UTC(),
		t.Version, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения предложения обмена: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pending proposal already exists: %w", models.ErrConflict)
	}
	return nil
}

// GetTradeProposal возвращает предложение обмена по ID
func GetTradeProposal(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.TradeProposal, error) {
	var t models.TradeProposal
	if err := get(ctx, q, &t, `SELECT `+tradeColumns+` FROM trade_proposals WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &t, nil
}

// CountPendingDuplicates считает ожидающие предложения с той же парой товаров
func CountPendingDuplicates(ctx context.Context, q sqlx.ExtContext, proposerID, receiverProductID uuid.UUID, proposerProductID *uuid.UUID) (int, error) {
	var count int
	var err error
	if proposerProductID == nil {
		err = get(ctx, q, &count, `
			SELECT COUNT(*) FROM trade_proposals
			WHERE proposer_id = ? AND receiver_product_id = ? AND proposer_product_id IS NULL AND status = 'pending'`,
			proposerID, receiverProductID)
	} else {
		err = get(ctx, q, &count, `
			SELECT COUNT(*) FROM trade_proposals
			WHERE proposer_id = ? AND receiver_product_id = ? AND proposer_product_id = ? AND status = 'pending'`,
			proposerID, receiverProductID, *proposerProductID)
	}
	return count, err
}

// UpdateTradeStatus применяет переход статуса, только если запись не менялась
// с момента чтения. Иначе возвращает ErrConcurrentUpdate.
func UpdateTradeStatus(ctx context.Context, q sqlx.ExtContext, u TradeStatusUpdate) error {
	return execCAS(ctx, q, `
		UPDATE trade_proposals SET
			status = ?,
			response_message = COALESCE(?, response_message),
			responded_at = COALESCE(?, responded_at),
			completed_at = COALESCE(?, completed_at),
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND status = ? AND version = ?`,
		u.To, u.ResponseMessage, u.RespondedAt, u.CompletedAt, u.Now.UTC(),
		u.ID, u.From, u.Version,
	)
}

// ListTradeProposals возвращает обмены пользователя
func ListTradeProposals(ctx context.Context, q sqlx.ExtContext, f TradeFilter) ([]models.TradeProposal, error) {
	query := `SELECT ` + tradeColumns + ` FROM trade_proposals WHERE `
	var args []interface{}
	switch f.Direction {
	case "incoming":
		query += `receiver_id = ?`
		args = append(args, f.UserID)
	case "outgoing":
		query += `proposer_id = ?`
		args = append(args, f.UserID)
	default:
		query += `(proposer_id = ? OR receiver_id = ?)`
		args = append(args, f.UserID, f.UserID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	trades := []models.TradeProposal{}
	if err := selectAll(ctx, q, &trades, query, args...); err != nil {
		return nil, fmt.Errorf("ошибка получения обменов: %w", err)
	}
	return trades, nil
}

// ListExpiredTradeProposals возвращает ожидающие предложения с истекшим сроком
func ListExpiredTradeProposals(ctx context.Context, q sqlx.ExtContext, now time.Time, limit int) ([]models.TradeProposal, error) {
	trades := []models.TradeProposal{}
	err := selectAll(ctx, q, &trades, `
		SELECT `+tradeColumns+` FROM trade_proposals
		WHERE status = 'pending' AND expires_at <= ?
		ORDER BY expires_at LIMIT ?`, now.UTC(), limit)
	return trades, err
}
