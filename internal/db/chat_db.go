package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const conversationColumns = `id, participant_a, participant_b, trade_proposal_id, last_message_text,
	last_message_at, created_at, updated_at`

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, kind, trade_proposal_id, read_at, created_at`

// GetOrCreateConversation возвращает диалог пары пользователей, создавая его при необходимости
func GetOrCreateConversation(ctx context.Context, q sqlx.ExtContext, userA, userB uuid.UUID, tradeID *uuid.UUID, now time.Time) (*models.Conversation, error) {
	a, b := models.OrderedPair(userA, userB)
	now = now.UTC()
	_, err := exec(ctx, q, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, '', NULL, ?, ?)
		ON CONFLICT (participant_a, participant_b) DO NOTHING`,
		uuid.New(), a, b, tradeID, now, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания диалога: %w", err)
	}

	var c models.Conversation
	if err := get(ctx, q, &c, `SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = ? AND participant_b = ?`, a, b); err != nil {
		return nil, err
	}
	if tradeID != nil && (c.TradeProposalID == nil || *c.TradeProposalID != *tradeID) {
		if _, err := exec(ctx, q, `UPDATE conversations SET trade_proposal_id = ? WHERE id = ?`, *tradeID, c.ID); err != nil {
			return nil, err
		}
		c.TradeProposalID = tradeID
	}
	return &c, nil
}

// GetConversation возвращает диалог по ID
func GetConversation(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Conversation, error) {
	var c models.Conversation
	if err := get(ctx, q, &c, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertMessage сохраняет сообщение и обновляет последнее сообщение диалога
func InsertMessage(ctx context.Context, q sqlx.ExtContext, m *models.Message) error {
	_, err := exec(ctx, q, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.Kind, m.TradeProposalID, m.ReadAt, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения сообщения: %w", err)
	}
	_, err = exec(ctx, q, `
		UPDATE conversations SET last_message_text = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?`, m.Content, m.CreatedAt.UTC(), m.CreatedAt.UTC(), m.ConversationID)
	if err != nil {
		return fmt.Errorf("ошибка обновления диалога: %w", err)
	}
	return nil
}

// ListConversations возвращает диалоги пользователя с количеством непрочитанных
func ListConversations(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) ([]models.Conversation, error) {
	out := []models.Conversation{}
	err := selectAll(ctx, q, &out, `
		SELECT c.id, c.participant_a, c.participant_b, c.trade_proposal_id, c.last_message_text,
			c.last_message_at, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = c.id AND m.receiver_id = ? AND m.read_at IS NULL) AS unread_count
		FROM conversations c
		WHERE c.participant_a = ? OR c.participant_b = ?
		ORDER BY c.updated_at DESC`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения диалогов: %w", err)
	}
	return out, nil
}

// ListMessages возвращает сообщения диалога, новые первыми
func ListMessages(ctx context.Context, q sqlx.ExtContext, conversationID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []interface{}{conversationID}
	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, before.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	out := []models.Message{}
	if err := selectAll(ctx, q, &out, query, args...); err != nil {
		return nil, fmt.Errorf("ошибка получения сообщений: %w", err)
	}
	return out, nil
}

// MarkConversationRead отмечает входящие сообщения диалога прочитанными
func MarkConversationRead(ctx context.Context, q sqlx.ExtContext, conversationID, readerID uuid.UUID, now time.Time) (int64, error) {
	return exec(ctx, q, `
		UPDATE messages SET read_at = ?
		WHERE conversation_id = ? AND receiver_id = ? AND read_at IS NULL`, now.UTC(), conversationID, readerID)
}

// CountUnreadMessages возвращает общее число непрочитанных сообщений пользователя
func CountUnreadMessages(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (int, error) {
	var count int
	err := get(ctx, q, &count, `SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND read_at IS NULL`, userID)
	return count, err
}
