package shipping

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/outbox"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

var log = logging.Logger("barter-shipping")

const aggregateShipping = "shipping_order"

// ShippingService ведет отправления товаров по обменам
type ShippingService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	waker      outbox.Waker
	now        func() time.Time
}

// NewShippingService создает новый экземпляр ShippingService
func NewShippingService(cfg *config.Config, database *db.DB, waker outbox.Waker) *ShippingService {
	return &ShippingService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		waker:      waker,
		now:        time.Now,
	}
}

// SetClock подменяет источник времени
func (s *ShippingService) SetClock(now func() time.Time) { s.now = now }

// CreateInput содержит параметры отправления
type CreateInput struct {
	TradeProposalID uuid.UUID `json:"trade_proposal_id" validate:"required"`
	Carrier         string    `json:"carrier" validate:"required"`
	TrackingNumber  string    `json:"tracking_number" validate:"max=100"`
	Address         string    `json:"address" validate:"required,max=500"`
}

// Create регистрирует отправление от вызывающего участника второму участнику
func (s *ShippingService) Create(ctx context.Context, senderID uuid.UUID, in CreateInput) (*models.ShippingOrder, error) {
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}
	carrier := strings.ToLower(strings.TrimSpace(in.Carrier))
	if !models.IsKnownCarrier(carrier) {
		return nil, models.NewValidationError("carrier", "неизвестный перевозчик")
	}

	now := s.now().UTC()
	var order *models.ShippingOrder

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		trade, err := db.GetTradeProposal(ctx, tx, in.TradeProposalID)
		if err != nil {
			return err
		}
		if !trade.IsParticipant(senderID) {
			return fmt.Errorf("отправление может создать только участник обмена: %w", models.ErrForbidden)
		}
		if trade.Status != models.TradeStatusAccepted && trade.Status != models.TradeStatusCompleted {
			return fmt.Errorf("обмен в статусе %s не допускает отправку: %w", trade.Status, models.ErrConflict)
		}

		order = &models.ShippingOrder{
			ID:              uuid.New(),
			TradeProposalID: trade.ID,
			SenderID:        senderID,
			ReceiverID:      trade.Counterpart(senderID),
			Carrier:         carrier,
			TrackingNumber:  strings.TrimSpace(in.TrackingNumber),
			Address:         in.Address,
			Status:          models.ShippingStatusPending,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return db.InsertShippingOrder(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	order.TrackingURL = models.TrackingURL(order.Carrier, order.TrackingNumber)
	log.Infof("Создано отправление %s по обмену %s", order.ID, order.TradeProposalID)
	return order, nil
}

// Advance выполняет действие над отправлением.
// ship и cancel доступны отправителю, deliver - получателю, in_transit - обоим.
func (s *ShippingService) Advance(ctx context.Context, actorID, id uuid.UUID, action models.ShippingAction, trackingNumber string) (*models.ShippingOrder, error) {
	now := s.now().UTC()
	trackingNumber = strings.TrimSpace(trackingNumber)
	var order *models.ShippingOrder

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		o, err := db.GetShippingOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorize(o, actorID, action); err != nil {
			return err
		}
		next, err := models.NextShippingStatus(o.Status, action)
		if err != nil {
			return err
		}

		u := db.ShippingStatusUpdate{ID: o.ID, From: o.Status, To: next, Version: o.Version, Now: now}
		var notices []outbox.Notice
		switch action {
		case models.ShippingActionShip:
			if trackingNumber == "" {
				trackingNumber = o.TrackingNumber
			}
			if trackingNumber == "" {
				return models.NewValidationError("tracking_number", "укажите трек-номер")
			}
			u.TrackingNumber = &trackingNumber
			u.ShippedAt = &now
			o.TrackingNumber = trackingNumber
			o.ShippedAt = &now
			notices = append(notices, outbox.Notice{
				AggregateType: aggregateShipping,
				AggregateID:   o.ID,
				RecipientID:   o.ReceiverID,
				Type:          models.NotificationShipmentSent,
				Title:         "Товар отправлен",
				Message:       fmt.Sprintf("Трек-номер %s (%s)", trackingNumber, strings.ToUpper(o.Carrier)),
			})
		case models.ShippingActionDeliver:
			u.DeliveredAt = &now
			o.DeliveredAt = &now
			notices = append(notices, outbox.Notice{
				AggregateType: aggregateShipping,
				AggregateID:   o.ID,
				RecipientID:   o.SenderID,
				Type:          models.NotificationShipmentDone,
				Title:         "Товар получен",
				Message:       "Получатель подтвердил доставку",
			})
		}

		if err := db.UpdateShippingStatus(ctx, tx, u); err != nil {
			return err
		}
		if err := outbox.Enqueue(ctx, tx, now, notices...); err != nil {
			return err
		}
		o.Status = next
		o.Version++
		o.UpdatedAt = now
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.waker != nil {
		s.waker.Wake()
	}
	order.TrackingURL = models.TrackingURL(order.Carrier, order.TrackingNumber)
	return order, nil
}

func authorize(o *models.ShippingOrder, actorID uuid.UUID, action models.ShippingAction) error {
	allowed := false
	switch action {
	case models.ShippingActionShip, models.ShippingActionCancel:
		allowed = actorID == o.SenderID
	case models.ShippingActionDeliver:
		allowed = actorID == o.ReceiverID
	case models.ShippingActionTransit:
		allowed = actorID == o.SenderID || actorID == o.ReceiverID
	}
	if !allowed {
		return fmt.Errorf("действие %s над отправлением: %w", action, models.ErrForbidden)
	}
	return nil
}

// Get возвращает отправление участнику обмена
func (s *ShippingService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ShippingOrder, error) {
	o, err := db.GetShippingOrder(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if o.SenderID != actor.ID && o.ReceiverID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("нет доступа к отправлению: %w", models.ErrForbidden)
	}
	o.TrackingURL = models.TrackingURL(o.Carrier, o.TrackingNumber)
	return o, nil
}

// ListForTrade возвращает отправления по обмену
func (s *ShippingService) ListForTrade(ctx context.Context, actor models.Actor, tradeID uuid.UUID) ([]models.ShippingOrder, error) {
	trade, err := db.GetTradeProposal(ctx, s.db, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.IsParticipant(actor.ID) && !actor.IsAdmin() {
		return nil, fmt.Errorf("нет доступа к обмену: %w", models.ErrForbidden)
	}
	orders, err := db.ListShippingOrdersForTrade(ctx, s.db, tradeID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].TrackingURL = models.TrackingURL(orders[i].Carrier, orders[i].TrackingNumber)
	}
	return orders, nil
}
