package chat

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

// GetChats возвращает список чатов пользователя
func (s *ChatService) GetChats(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	chats, err := s.ListConversations(ctx, actor.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"chats": chats,
		"count": len(chats),
	})
}

// CreateChat начинает диалог первым сообщением
func (s *ChatService) CreateChat(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var requestData struct {
		ReceiverID uuid.UUID  `json:"receiver_id" validate:"required"`
		Text       string     `json:"text" validate:"required"`
		TradeID    *uuid.UUID `json:"trade_id"`
	}
	if err := utils.BindAndValidate(c, &requestData); err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	msg, err := s.Send(ctx, actor.ID, requestData.ReceiverID, requestData.Text, requestData.TradeID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"chat_id": msg.ConversationID,
		"message": msg,
	})
}

// GetChatMessages возвращает сообщения конкретного чата
func (s *ChatService) GetChatMessages(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	chatID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return utils.SendError(c, models.NewValidationError("before", "ожидается время в формате RFC3339"))
		}
		before = &t
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	ctx, cancel := db.GetContext()
	defer cancel()

	messages, err := s.ListMessages(ctx, actor.ID, chatID, before, limit)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"messages": messages,
		"count":    len(messages),
	})
}

// SendMessage отправляет сообщение в чат
func (s *ChatService) SendMessage(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	chatID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	var requestData struct {
		Text string `json:"text" validate:"required"`
	}
	if err := utils.BindAndValidate(c, &requestData); err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	msg, err := s.SendToConversation(ctx, actor.ID, chatID, requestData.Text)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": msg,
		"success": true,
	})
}

// MarkChatRead отмечает входящие сообщения чата прочитанными
func (s *ChatService) MarkChatRead(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	chatID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	n, err := s.MarkRead(ctx, actor.ID, chatID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "updated": n})
}

// GetUnreadCount возвращает общее число непрочитанных сообщений
func (s *ChatService) GetUnreadCount(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	count, err := s.UnreadCount(ctx, actor.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}
