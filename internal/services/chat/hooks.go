package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// RealtimeHooks связывает realtime-канал с диалогами
type RealtimeHooks struct {
	service *ChatService
}

// Hooks возвращает обработчики для websocket.Manager
func (s *ChatService) Hooks() *RealtimeHooks {
	return &RealtimeHooks{service: s}
}

// Counterpart возвращает собеседника пользователя в диалоге
func (h *RealtimeHooks) Counterpart(ctx context.Context, conversationID, userID string) (string, error) {
	convID, uid, err := parseIDs(conversationID, userID)
	if err != nil {
		return "", err
	}
	conv, err := h.service.conversationFor(ctx, convID, uid)
	if err != nil {
		return "", err
	}
	return conv.Other(uid).String(), nil
}

// MarkConversationRead отмечает диалог прочитанным
func (h *RealtimeHooks) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	convID, uid, err := parseIDs(conversationID, userID)
	if err != nil {
		return 0, err
	}
	return h.service.MarkRead(ctx, uid, convID)
}

func parseIDs(conversationID, userID string) (uuid.UUID, uuid.UUID, error) {
	convID, err := uuid.Parse(conversationID)
	if err != nil {
		return uuid.Nil, uuid.Nil, models.NewValidationError("chat_id", "неверный формат ID")
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, models.NewValidationError("user_id", "неверный формат ID")
	}
	return convID, uid, nil
}
