package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/outbox"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

var log = logging.Logger("barter-trade")

const aggregateTrade = "trade_proposal"

// Текст системного сообщения, которое открывает диалог после принятия обмена
const acceptedSystemMessage = "Обмен был принят. Вы можете обсудить детали здесь."

// TradeService представляет сервис для работы с обменами
type TradeService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	waker      outbox.Waker
	now        func() time.Time
}

// NewTradeService создает новый экземпляр TradeService.
// waker может быть nil, тогда диспетчер найдет события по таймеру.
func NewTradeService(cfg *config.Config, database *db.DB, waker outbox.Waker) *TradeService {
	return &TradeService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		waker:      waker,
		now:        time.Now,
	}
}

// SetClock подменяет источник времени
func (s *TradeService) SetClock(now func() time.Time) { s.now = now }

// CreateInput содержит параметры нового предложения обмена
type CreateInput struct {
	ReceiverProductID uuid.UUID       `json:"receiver_product_id" validate:"required"`
	ProposerProductID *uuid.UUID      `json:"proposer_product_id"`
	Message           string          `json:"message" validate:"max=1000"`
	CashDifference    decimal.Decimal `json:"cash_difference"`
	CashFrom          models.CashFrom `json:"cash_from"`
}

func (in *CreateInput) normalize() error {
	if in.CashDifference.IsNegative() {
		return models.NewValidationError("cash_difference", "доплата не может быть отрицательной")
	}
	if in.CashFrom == "" {
		if in.CashDifference.IsZero() {
			in.CashFrom = models.CashFromNone
		} else {
			return models.NewValidationError("cash_from", "укажите, кто доплачивает разницу")
		}
	}
	if !in.CashFrom.Valid() {
		return models.NewValidationError("cash_from", "недопустимое значение")
	}
	if in.CashDifference.IsZero() != (in.CashFrom == models.CashFromNone) {
		return models.NewValidationError("cash_from", "значение не согласуется с размером доплаты")
	}
	return nil
}

// Create создает предложение обмена и уведомляет владельца товара
func (s *TradeService) Create(ctx context.Context, proposerID uuid.UUID, in CreateInput) (*models.TradeProposal, error) {
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var trade *models.TradeProposal

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		receiverProduct, err := db.GetProduct(ctx, tx, in.ReceiverProductID)
		if err != nil {
			return fmt.Errorf("товар получателя: %w", err)
		}
		if receiverProduct.UserID == proposerID {
			return models.NewValidationError("receiver_product_id", "нельзя предложить обмен самому себе")
		}
		if !receiverProduct.IsTradable() {
			return models.NewValidationError("receiver_product_id", "товар недоступен для обмена")
		}

		if in.ProposerProductID != nil {
			proposerProduct, err := db.GetProduct(ctx, tx, *in.ProposerProductID)
			if err != nil {
				return fmt.Errorf("товар отправителя: %w", err)
			}
			if proposerProduct.UserID != proposerID {
				return fmt.Errorf("нельзя предложить чужой товар: %w", models.ErrForbidden)
			}
			if proposerProduct.Status != models.ProductStatusActive {
				return models.NewValidationError("proposer_product_id", "товар недоступен для обмена")
			}
		}

		dups, err := db.CountPendingDuplicates(ctx, tx, proposerID, in.ReceiverProductID, in.ProposerProductID)
		if err != nil {
			return err
		}
		if dups > 0 {
			return fmt.Errorf("такое предложение обмена уже существует: %w", models.ErrConflict)
		}

		trade = &models.TradeProposal{
			ID:                uuid.New(),
			ProposerID:        proposerID,
			ReceiverID:        receiverProduct.UserID,
			ProposerProductID: in.ProposerProductID,
			ReceiverProductID: in.ReceiverProductID,
			Message:           in.Message,
			CashDifference:    in.CashDifference,
			CashFrom:          in.CashFrom,
			Status:            models.TradeStatusPending,
			ExpiresAt:         now.Add(s.cfg.Trade.ProposalTTL),
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := db.InsertTradeProposal(ctx, tx, trade); err != nil {
			return err
		}

		return outbox.Enqueue(ctx, tx, now, outbox.Notice{
			AggregateType: aggregateTrade,
			AggregateID:   trade.ID,
			RecipientID:   trade.ReceiverID,
			Type:          models.NotificationTradeProposal,
			Title:         "Новое предложение обмена",
			Message:       fmt.Sprintf("Вам предложили обмен на «%s»", receiverProduct.Title),
		})
	})
	if err != nil {
		return nil, err
	}

	s.wake()
	log.Infof("Создано предложение обмена %s: %s -> %s", trade.ID, trade.ProposerID, trade.ReceiverID)
	return trade, nil
}

// step описывает один переход статуса обмена
type step struct {
	action    models.TradeAction
	authorize func(t *models.TradeProposal) error
	update    func(u *db.TradeStatusUpdate)
	effects   func(ctx context.Context, tx *sqlx.Tx, t *models.TradeProposal) ([]outbox.Notice, error)
}

// transition выполняет переход в одной транзакции: чтение, проверка прав,
// проверка перехода, условное обновление, побочные записи и события outbox
func (s *TradeService) transition(ctx context.Context, id uuid.UUID, st step) (*models.TradeProposal, error) {
	now := s.now().UTC()
	var trade *models.TradeProposal

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		t, err := db.GetTradeProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if st.authorize != nil {
			if err := st.authorize(t); err != nil {
				return err
			}
		}
		if (st.action == models.TradeActionAccept || st.action == models.TradeActionReject) && t.IsExpired(now) {
			return &models.TransitionError{Entity: "trade proposal", From: string(models.TradeStatusExpired), Action: string(st.action)}
		}

		next, err := models.NextTradeStatus(t.Status, st.action)
		if err != nil {
			return err
		}

		u := db.TradeStatusUpdate{ID: t.ID, From: t.Status, To: next, Version: t.Version, Now: now}
		if st.update != nil {
			st.update(&u)
		}
		if err := db.UpdateTradeStatus(ctx, tx, u); err != nil {
			return err
		}

		t.Status = next
		t.Version++
		t.UpdatedAt = now
		if u.ResponseMessage != nil {
			t.ResponseMessage = *u.ResponseMessage
		}
		if u.RespondedAt != nil {
			t.RespondedAt = u.RespondedAt
		}
		if u.CompletedAt != nil {
			t.CompletedAt = u.CompletedAt
		}

		notices, err := st.effects(ctx, tx, t)
		if err != nil {
			return err
		}
		if err := outbox.Enqueue(ctx, tx, now, notices...); err != nil {
			return err
		}
		trade = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.wake()
	return trade, nil
}

// Respond принимает или отклоняет предложение. Доступно только получателю
// и только пока предложение ожидает ответа.
func (s *TradeService) Respond(ctx context.Context, actorID, id uuid.UUID, decision models.TradeStatus, message string) (*models.TradeProposal, error) {
	var action models.TradeAction
	switch decision {
	case models.TradeStatusAccepted:
		action = models.TradeActionAccept
	case models.TradeStatusRejected:
		action = models.TradeActionReject
	default:
		return nil, models.NewValidationError("status", "допустимы только accepted или rejected")
	}

	now := s.now().UTC()
	trade, err := s.transition(ctx, id, step{
		action: action,
		authorize: func(t *models.TradeProposal) error {
			if t.ReceiverID != actorID {
				return fmt.Errorf("только получатель может ответить на предложение: %w", models.ErrForbidden)
			}
			return nil
		},
		update: func(u *db.TradeStatusUpdate) {
			u.ResponseMessage = &message
			u.RespondedAt = &now
		},
		effects: func(ctx context.Context, tx *sqlx.Tx, t *models.TradeProposal) ([]outbox.Notice, error) {
			if action == models.TradeActionReject {
				return []outbox.Notice{{
					AggregateType: aggregateTrade,
					AggregateID:   t.ID,
					RecipientID:   t.ProposerID,
					Type:          models.NotificationTradeRejected,
					Title:         "Предложение обмена отклонено",
					Message:       responseText(message, "Получатель отклонил ваше предложение"),
				}}, nil
			}

			conv, err := db.GetOrCreateConversation(ctx, tx, t.ProposerID, t.ReceiverID, &t.ID, now)
			if err != nil {
				return nil, err
			}
			tradeID := t.ID
			if err := db.InsertMessage(ctx, tx, &models.Message{
				ID:              uuid.New(),
				ConversationID:  conv.ID,
				SenderID:        t.ReceiverID,
				ReceiverID:      t.ProposerID,
				Content:         acceptedSystemMessage,
				Kind:            models.MessageKindSystem,
				TradeProposalID: &tradeID,
				CreatedAt:       now,
			}); err != nil {
				return nil, err
			}
			t.ConversationID = conv.ID

			return []outbox.Notice{{
				AggregateType: aggregateTrade,
				AggregateID:   t.ID,
				RecipientID:   t.ProposerID,
				Type:          models.NotificationTradeAccepted,
				Title:         "Предложение обмена принято",
				Message:       responseText(message, "Получатель принял ваше предложение"),
			}}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Предложение обмена %s: %s пользователем %s", trade.ID, trade.Status, actorID)
	return trade, nil
}

// Complete завершает принятый обмен. Оба товара помечаются обменянными.
func (s *TradeService) Complete(ctx context.Context, actorID, id uuid.UUID) (*models.TradeProposal, error) {
	now := s.now().UTC()
	trade, err := s.transition(ctx, id, step{
		action: models.TradeActionComplete,
		authorize: func(t *models.TradeProposal) error {
			if !t.IsParticipant(actorID) {
				return fmt.Errorf("завершить обмен может только участник: %w", models.ErrForbidden)
			}
			return nil
		},
		update: func(u *db.TradeStatusUpdate) {
			u.CompletedAt = &now
		},
		effects: func(ctx context.Context, tx *sqlx.Tx, t *models.TradeProposal) ([]outbox.Notice, error) {
			ids := []uuid.UUID{t.ReceiverProductID}
			if t.ProposerProductID != nil {
				ids = append(ids, *t.ProposerProductID)
			}
			if err := db.SetProductStatus(ctx, tx, models.ProductStatusTraded, now, ids...); err != nil {
				return nil, err
			}

			notices := make([]outbox.Notice, 0, 2)
			for _, recipient := range []uuid.UUID{t.ProposerID, t.ReceiverID} {
				notices = append(notices, outbox.Notice{
					AggregateType: aggregateTrade,
					AggregateID:   t.ID,
					RecipientID:   recipient,
					Type:          models.NotificationTradeCompleted,
					Title:         "Обмен завершен",
					Message:       "Обмен успешно завершен. Не забудьте оставить отзыв.",
				})
			}
			return notices, nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Обмен %s завершен пользователем %s", trade.ID, actorID)
	return trade, nil
}

// Cancel отменяет предложение. Доступно только автору предложения.
func (s *TradeService) Cancel(ctx context.Context, actorID, id uuid.UUID) (*models.TradeProposal, error) {
	trade, err := s.transition(ctx, id, step{
		action: models.TradeActionCancel,
		authorize: func(t *models.TradeProposal) error {
			if t.ProposerID != actorID {
				return fmt.Errorf("отменить предложение может только его автор: %w", models.ErrForbidden)
			}
			return nil
		},
		effects: func(ctx context.Context, tx *sqlx.Tx, t *models.TradeProposal) ([]outbox.Notice, error) {
			return []outbox.Notice{{
				AggregateType: aggregateTrade,
				AggregateID:   t.ID,
				RecipientID:   t.ReceiverID,
				Type:          models.NotificationTradeCancelled,
				Title:         "Предложение обмена отменено",
				Message:       "Автор отменил предложение обмена",
			}}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Предложение обмена %s отменено", trade.ID)
	return trade, nil
}

// Expire переводит просроченное предложение в статус expired
func (s *TradeService) Expire(ctx context.Context, id uuid.UUID) (*models.TradeProposal, error) {
	now := s.now().UTC()
	return s.transition(ctx, id, step{
		action: models.TradeActionExpire,
		authorize: func(t *models.TradeProposal) error {
			if !t.IsExpired(now) {
				return &models.TransitionError{Entity: "trade proposal", From: string(t.Status), Action: string(models.TradeActionExpire)}
			}
			return nil
		},
		effects: func(ctx context.Context, tx *sqlx.Tx, t *models.TradeProposal) ([]outbox.Notice, error) {
			return []outbox.Notice{{
				AggregateType: aggregateTrade,
				AggregateID:   t.ID,
				RecipientID:   t.ProposerID,
				Type:          models.NotificationTradeExpired,
				Title:         "Срок предложения истек",
				Message:       "Получатель не ответил на ваше предложение вовремя",
			}}, nil
		},
	})
}

// ExpireDue переводит все просроченные предложения в статус expired.
// Предложения, на которые успели ответить, пропускаются.
func (s *TradeService) ExpireDue(ctx context.Context) (int, error) {
	due, err := db.ListExpiredTradeProposals(ctx, s.db, s.now().UTC(), 100)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, t := range due {
		_, err := s.Expire(ctx, t.ID)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrConcurrentUpdate):
			log.Debugf("Предложение %s изменилось до истечения срока: %v", t.ID, err)
		default:
			return expired, err
		}
	}
	if expired > 0 {
		log.Infof("Истек срок %d предложений обмена", expired)
	}
	return expired, nil
}

// RunExpirySweeper периодически закрывает просроченные предложения
func (s *TradeService) RunExpirySweeper(ctx context.Context) {
	interval := s.cfg.Trade.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireDue(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("Ошибка закрытия просроченных предложений: %v", err)
			}
		}
	}
}

// Get возвращает предложение обмена участнику или администратору
func (s *TradeService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.TradeProposal, error) {
	t, err := db.GetTradeProposal(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(actor.ID) && !actor.IsAdmin() {
		return nil, fmt.Errorf("нет доступа к обмену: %w", models.ErrForbidden)
	}
	trades := []models.TradeProposal{*t}
	if err := s.enrich(ctx, trades); err != nil {
		return nil, err
	}
	return &trades[0], nil
}

// List возвращает обмены пользователя
func (s *TradeService) List(ctx context.Context, f db.TradeFilter) ([]models.TradeProposal, error) {
	trades, err := db.ListTradeProposals(ctx, s.db, f)
	if err != nil {
		return nil, err
	}
	if err := s.enrich(ctx, trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// enrich загружает товары и участников для ответа API
func (s *TradeService) enrich(ctx context.Context, trades []models.TradeProposal) error {
	userIDs := make([]uuid.UUID, 0, len(trades)*2)
	for _, t := range trades {
		userIDs = append(userIDs, t.ProposerID, t.ReceiverID)
	}
	users, err := db.GetUserBriefs(ctx, s.db, userIDs)
	if err != nil {
		return err
	}

	for i := range trades {
		t := &trades[i]
		t.Proposer = users[t.ProposerID]
		t.Receiver = users[t.ReceiverID]
		t.ReceiverProduct = s.productInfo(ctx, t.ReceiverProductID)
		if t.ProposerProductID != nil {
			t.ProposerProduct = s.productInfo(ctx, *t.ProposerProductID)
		}
	}
	return nil
}

func (s *TradeService) productInfo(ctx context.Context, id uuid.UUID) *models.Product {
	p, err := db.GetProduct(ctx, s.db, id)
	if err != nil {
		log.Warnf("Ошибка получения товара %s: %v", id, err)
		return nil
	}
	return p
}

func (s *TradeService) wake() {
	if s.waker != nil {
		s.waker.Wake()
	}
}

func responseText(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
