package escrow

import (
	"context"
	"fmt"
	"strings"
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

var log = logging.Logger("barter-escrow")

const aggregateEscrow = "escrow"

// EscrowService ведет учет эскроу-платежей по обменам
type EscrowService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	waker      outbox.Waker
	now        func() time.Time
}

// NewEscrowService создает новый экземпляр EscrowService
func NewEscrowService(cfg *config.Config, database *db.DB, waker outbox.Waker) *EscrowService {
	return &EscrowService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		waker:      waker,
		now:        time.Now,
	}
}

// SetClock подменяет источник времени
func (s *EscrowService) SetClock(now func() time.Time) { s.now = now }

// CreateInput содержит параметры новой эскроу-транзакции
type CreateInput struct {
	ReceiverID      uuid.UUID       `json:"receiver_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentMethod   string          `json:"payment_method" validate:"max=50"`
	TradeProposalID *uuid.UUID      `json:"trade_proposal_id"`
}

// Create создает эскроу в статусе pending. Плательщиком становится вызывающий.
func (s *EscrowService) Create(ctx context.Context, payerID uuid.UUID, in CreateInput) (*models.EscrowTransaction, error) {
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, models.NewValidationError("amount", "сумма должна быть больше нуля")
	}
	if in.ReceiverID == payerID {
		return nil, models.NewValidationError("receiver_id", "получатель не может совпадать с плательщиком")
	}
	if in.TradeProposalID == nil && s.cfg.Escrow.RequireTrade {
		return nil, models.NewValidationError("trade_proposal_id", "эскроу должно быть привязано к обмену")
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = s.cfg.Escrow.DefaultCurrency
	}

	now := s.now().UTC()
	var escrow *models.EscrowTransaction

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := db.GetProfile(ctx, tx, in.ReceiverID); err != nil {
			return fmt.Errorf("получатель: %w", err)
		}

		if in.TradeProposalID != nil {
			trade, err := db.GetTradeProposal(ctx, tx, *in.TradeProposalID)
			if err != nil {
				return fmt.Errorf("обмен: %w", err)
			}
			if !trade.IsParticipant(payerID) || trade.Counterpart(payerID) != in.ReceiverID {
				return fmt.Errorf("стороны эскроу должны быть участниками обмена: %w", models.ErrForbidden)
			}
			if err := s.checkTrade(trade); err != nil {
				return err
			}
		}

		escrow = &models.EscrowTransaction{
			ID:              uuid.New(),
			TradeProposalID: in.TradeProposalID,
			PayerID:         payerID,
			ReceiverID:      in.ReceiverID,
			Amount:          in.Amount,
			Currency:        currency,
			Status:          models.EscrowStatusPending,
			PaymentMethod:   in.PaymentMethod,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := db.InsertEscrow(ctx, tx, escrow); err != nil {
			return err
		}

		return outbox.Enqueue(ctx, tx, now, outbox.Notice{
			AggregateType: aggregateEscrow,
			AggregateID:   escrow.ID,
			RecipientID:   escrow.ReceiverID,
			Type:          models.NotificationEscrowCreated,
			Title:         "Создан эскроу-платеж",
			Message:       fmt.Sprintf("Сумма %s %s ожидает пополнения", escrow.Amount.StringFixed(2), escrow.Currency),
		})
	})
	if err != nil {
		return nil, err
	}

	s.wake()
	log.Infof("Создано эскроу %s: %s -> %s, %s %s", escrow.ID, payerID, in.ReceiverID, in.Amount.StringFixed(2), currency)
	return escrow, nil
}

// checkTrade применяет политику связи эскроу и обмена
func (s *EscrowService) checkTrade(trade *models.TradeProposal) error {
	if !s.cfg.Escrow.RequireAcceptedTrade {
		return nil
	}
	if trade.Status != models.TradeStatusAccepted && trade.Status != models.TradeStatusCompleted {
		return fmt.Errorf("обмен в статусе %s не допускает эскроу: %w", trade.Status, models.ErrConflict)
	}
	return nil
}

// action описывает один переход статуса эскроу
type action struct {
	kind    models.EscrowAction
	update  func(u *db.EscrowStatusUpdate, now time.Time)
	notices func(e *models.EscrowTransaction, actor models.Actor) []outbox.Notice
}

func (s *EscrowService) apply(ctx context.Context, actor models.Actor, id uuid.UUID, a action) (*models.EscrowTransaction, error) {
	now := s.now().UTC()
	var escrow *models.EscrowTransaction

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		e, err := db.GetEscrow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := models.AuthorizeEscrowAction(e, a.kind, actor); err != nil {
			return fmt.Errorf("действие %s над эскроу: %w", a.kind, err)
		}
		next, err := models.NextEscrowStatus(e.Status, a.kind)
		if err != nil {
			return err
		}

		if a.kind == models.EscrowActionFund && e.TradeProposalID != nil {
			trade, err := db.GetTradeProposal(ctx, tx, *e.TradeProposalID)
			if err != nil {
				return err
			}
			if err := s.checkTrade(trade); err != nil {
				return err
			}
		}

		u := db.EscrowStatusUpdate{ID: e.ID, From: e.Status, To: next, Version: e.Version, Now: now}
		if a.update != nil {
			a.update(&u, now)
		}
		if err := db.UpdateEscrowStatus(ctx, tx, u); err != nil {
			return err
		}

		e.Status = next
		e.Version++
		e.UpdatedAt = now
		if u.PaymentReference != nil {
			e.PaymentReference = *u.PaymentReference
		}
		if u.DisputeReason != nil {
			e.DisputeReason = *u.DisputeReason
		}
		if u.FundedAt != nil {
			e.FundedAt = u.FundedAt
		}
		if u.ReleasedAt != nil {
			e.ReleasedAt = u.ReleasedAt
		}
		if u.RefundedAt != nil {
			e.RefundedAt = u.RefundedAt
		}

		if err := outbox.Enqueue(ctx, tx, now, a.notices(e, actor)...); err != nil {
			return err
		}
		escrow = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.wake()
	log.Infof("Эскроу %s: %s -> %s (пользователь %s)", escrow.ID, a.kind, escrow.Status, actor.ID)
	return escrow, nil
}

func notice(e *models.EscrowTransaction, recipient uuid.UUID, t models.NotificationType, title, message string) outbox.Notice {
	return outbox.Notice{
		AggregateType: aggregateEscrow,
		AggregateID:   e.ID,
		RecipientID:   recipient,
		Type:          t,
		Title:         title,
		Message:       message,
	}
}

// Fund отмечает эскроу пополненным. Доступно только плательщику.
func (s *EscrowService) Fund(ctx context.Context, actor models.Actor, id uuid.UUID, paymentReference string) (*models.EscrowTransaction, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, models.NewValidationError("payment_reference", "укажите номер платежа")
	}
	return s.apply(ctx, actor, id, action{
		kind: models.EscrowActionFund,
		update: func(u *db.EscrowStatusUpdate, now time.Time) {
			u.PaymentReference = &paymentReference
			u.FundedAt = &now
		},
		notices: func(e *models.EscrowTransaction, _ models.Actor) []outbox.Notice {
			return []outbox.Notice{notice(e, e.ReceiverID, models.NotificationEscrowFunded,
				"Эскроу пополнено", fmt.Sprintf("Плательщик внес %s %s", e.Amount.StringFixed(2), e.Currency))}
		},
	})
}

// Release переводит средства получателю
func (s *EscrowService) Release(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EscrowTransaction, error) {
	return s.apply(ctx, actor, id, action{
		kind: models.EscrowActionRelease,
		update: func(u *db.EscrowStatusUpdate, now time.Time) {
			u.ReleasedAt = &now
		},
		notices: func(e *models.EscrowTransaction, _ models.Actor) []outbox.Notice {
			return []outbox.Notice{notice(e, e.ReceiverID, models.NotificationEscrowReleased,
				"Средства переведены", fmt.Sprintf("Вам переведено %s %s", e.Amount.StringFixed(2), e.Currency))}
		},
	})
}

// Dispute открывает спор по пополненному эскроу
func (s *EscrowService) Dispute(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.EscrowTransaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, models.NewValidationError("reason", "укажите причину спора")
	}
	return s.apply(ctx, actor, id, action{
		kind: models.EscrowActionDispute,
		update: func(u *db.EscrowStatusUpdate, _ time.Time) {
			u.DisputeReason = &reason
		},
		notices: func(e *models.EscrowTransaction, actor models.Actor) []outbox.Notice {
			other := e.PayerID
			if actor.ID == e.PayerID {
				other = e.ReceiverID
			}
			return []outbox.Notice{notice(e, other, models.NotificationEscrowDisputed,
				"Открыт спор по эскроу", reason)}
		},
	})
}

// Refund возвращает средства плательщику. Получатель возвращает пополненное
// эскроу сам, администратор также может вернуть средства по спору.
func (s *EscrowService) Refund(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EscrowTransaction, error) {
	kind := models.EscrowActionRefund
	if actor.IsAdmin() {
		e, err := db.GetEscrow(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if e.Status == models.EscrowStatusDisputed {
			kind = models.EscrowActionResolveRefund
		}
	}
	return s.apply(ctx, actor, id, refundAction(kind))
}

// Resolve закрывает спор решением администратора
func (s *EscrowService) Resolve(ctx context.Context, actor models.Actor, id uuid.UUID, outcome string) (*models.EscrowTransaction, error) {
	switch outcome {
	case "release":
		return s.apply(ctx, actor, id, action{
			kind: models.EscrowActionResolveRelease,
			update: func(u *db.EscrowStatusUpdate, now time.Time) {
				u.ReleasedAt = &now
			},
			notices: func(e *models.EscrowTransaction, _ models.Actor) []outbox.Notice {
				return []outbox.Notice{
					notice(e, e.ReceiverID, models.NotificationEscrowReleased, "Спор решен", "Средства переведены вам"),
					notice(e, e.PayerID, models.NotificationEscrowReleased, "Спор решен", "Средства переведены получателю"),
				}
			},
		})
	case "refund":
		return s.apply(ctx, actor, id, refundAction(models.EscrowActionResolveRefund))
	default:
		return nil, models.NewValidationError("outcome", "допустимы только release или refund")
	}
}

func refundAction(kind models.EscrowAction) action {
	return action{
		kind: kind,
		update: func(u *db.EscrowStatusUpdate, now time.Time) {
			u.RefundedAt = &now
		},
		notices: func(e *models.EscrowTransaction, _ models.Actor) []outbox.Notice {
			notices := []outbox.Notice{notice(e, e.PayerID, models.NotificationEscrowRefunded,
				"Средства возвращены", fmt.Sprintf("Вам возвращено %s %s", e.Amount.StringFixed(2), e.Currency))}
			if kind == models.EscrowActionResolveRefund {
				notices = append(notices, notice(e, e.ReceiverID, models.NotificationEscrowRefunded,
					"Спор решен", "Средства возвращены плательщику"))
			}
			return notices
		},
	}
}

// Get возвращает эскроу участнику или администратору
func (s *EscrowService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.EscrowTransaction, error) {
	e, err := db.GetEscrow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !e.IsParticipant(actor.ID) && !actor.IsAdmin() {
		return nil, fmt.Errorf("нет доступа к эскроу: %w", models.ErrForbidden)
	}
	return e, nil
}

// List возвращает эскроу пользователя
func (s *EscrowService) List(ctx context.Context, userID uuid.UUID, status models.EscrowStatus, limit, offset int) ([]models.EscrowTransaction, error) {
	return db.ListEscrowsForUser(ctx, s.db, userID, status, limit, offset)
}

func (s *EscrowService) wake() {
	if s.waker != nil {
		s.waker.Wake()
	}
}
