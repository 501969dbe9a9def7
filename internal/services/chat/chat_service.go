package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/outbox"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

var log = logging.Logger("barter-chat")

const (
	maxMessageLength = 4000
	defaultPageSize  = 50
	maxPageSize      = 100
)

// Publisher доставляет сообщения в realtime-канал
type Publisher interface {
	PublishMessage(userID string, msg models.Message)
	BroadcastUnreadCounts(userID string, unreadCount int)
}

// ChatService представляет сервис для работы с диалогами
type ChatService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	publisher  Publisher
	waker      outbox.Waker
	now        func() time.Time
}

// NewChatService создает новый экземпляр ChatService. publisher и waker могут быть nil.
func NewChatService(cfg *config.Config, database *db.DB, publisher Publisher, waker outbox.Waker) *ChatService {
	return &ChatService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		publisher:  publisher,
		waker:      waker,
		now:        time.Now,
	}
}

// SetClock подменяет источник времени
func (s *ChatService) SetClock(now func() time.Time) { s.now = now }

// Send отправляет сообщение пользователю, создавая диалог при необходимости
func (s *ChatService) Send(ctx context.Context, senderID, receiverID uuid.UUID, content string, tradeID *uuid.UUID) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("text", "Текст сообщения не может быть пустым")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, models.NewValidationError("text", "сообщение слишком длинное")
	}
	if senderID == receiverID {
		return nil, models.NewValidationError("receiver_id", "нельзя написать самому себе")
	}

	now := s.now().UTC()
	msg := &models.Message{
		ID:              uuid.New(),
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Content:         content,
		Kind:            models.MessageKindText,
		TradeProposalID: tradeID,
		CreatedAt:       now,
	}

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sender, err := db.GetProfile(ctx, tx, senderID)
		if err != nil {
			return fmt.Errorf("отправитель: %w", err)
		}
		if _, err := db.GetProfile(ctx, tx, receiverID); err != nil {
			return fmt.Errorf("получатель: %w", err)
		}
		if tradeID != nil {
			trade, err := db.GetTradeProposal(ctx, tx, *tradeID)
			if err != nil {
				return fmt.Errorf("обмен: %w", err)
			}
			if !trade.IsParticipant(senderID) || trade.Counterpart(senderID) != receiverID {
				return fmt.Errorf("сообщение не относится к вашему обмену: %w", models.ErrForbidden)
			}
		}

		conv, err := db.GetOrCreateConversation(ctx, tx, senderID, receiverID, tradeID, now)
		if err != nil {
			return err
		}
		msg.ConversationID = conv.ID
		if err := db.InsertMessage(ctx, tx, msg); err != nil {
			return err
		}

		return outbox.Enqueue(ctx, tx, now, outbox.Notice{
			AggregateType: "message",
			AggregateID:   msg.ID,
			RecipientID:   receiverID,
			Type:          models.NotificationNewMessage,
			Title:         fmt.Sprintf("Новое сообщение от %s", displayName(sender)),
			Message:       preview(content),
		})
	})
	if err != nil {
		return nil, err
	}

	if s.waker != nil {
		s.waker.Wake()
	}
	s.push(ctx, msg)
	return msg, nil
}

// SendToConversation отправляет сообщение в существующий диалог
func (s *ChatService) SendToConversation(ctx context.Context, senderID, conversationID uuid.UUID, content string) (*models.Message, error) {
	conv, err := s.conversationFor(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, senderID, conv.Other(senderID), content, conv.TradeProposalID)
}

func (s *ChatService) push(ctx context.Context, msg *models.Message) {
	if s.publisher == nil {
		return
	}
	receiver := msg.ReceiverID.String()
	s.publisher.PublishMessage(receiver, *msg)
	if count, err := db.CountUnreadMessages(ctx, s.db, msg.ReceiverID); err == nil {
		s.publisher.BroadcastUnreadCounts(receiver, count)
	} else {
		log.Warnf("Не удалось посчитать непрочитанные для %s: %v", receiver, err)
	}
}

// conversationFor возвращает диалог, если пользователь в нем участвует
func (s *ChatService) conversationFor(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := db.GetConversation(ctx, s.db, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("У вас нет доступа к этому чату: %w", models.ErrForbidden)
	}
	return conv, nil
}

// ListConversations возвращает диалоги пользователя с собеседниками
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	convs, err := db.ListConversations(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.Other(userID))
	}
	users, err := db.GetUserBriefs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		convs[i].Counterpart = users[convs[i].Other(userID)]
	}
	return convs, nil
}

// ListMessages возвращает страницу сообщений диалога, начиная с самых новых
func (s *ChatService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return db.ListMessages(ctx, s.db, conversationID, before, limit)
}

// MarkRead отмечает входящие сообщения диалога прочитанными
func (s *ChatService) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) (int64, error) {
	if _, err := s.conversationFor(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	n, err := db.MarkConversationRead(ctx, s.db, conversationID, userID, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 && s.publisher != nil {
		if count, err := db.CountUnreadMessages(ctx, s.db, userID); err == nil {
			s.publisher.BroadcastUnreadCounts(userID.String(), count)
		}
	}
	return n, nil
}

// UnreadCount возвращает число непрочитанных сообщений пользователя
func (s *ChatService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return db.CountUnreadMessages(ctx, s.db, userID)
}

func displayName(p *models.Profile) string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		return name
	}
	if p.Username != "" {
		return "@" + p.Username
	}
	return "пользователя"
}

func preview(text string) string {
	const limit = 100
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}
