package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeStatus определяет статус предложения обмена
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusAccepted  TradeStatus = "accepted"
	TradeStatusRejected  TradeStatus = "rejected"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusExpired   TradeStatus = "expired"
)

// TradeAction определяет действие над предложением обмена
type TradeAction string

const (
	TradeActionAccept   TradeAction = "accept"
	TradeActionReject   TradeAction = "reject"
	TradeActionCancel   TradeAction = "cancel"
	TradeActionComplete TradeAction = "complete"
	TradeActionExpire   TradeAction = "expire"
)

// CashFrom определяет, кто доплачивает разницу
type CashFrom string

const (
	CashFromProposer CashFrom = "proposer"
	CashFromReceiver CashFrom = "receiver"
	CashFromNone     CashFrom = "none"
)

// Valid проверяет допустимость значения
func (c CashFrom) Valid() bool {
	switch c {
	case CashFromProposer, CashFromReceiver, CashFromNone:
		return true
	}
	return false
}

// TradeProposal представляет предложение об обмене
type TradeProposal struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	ProposerID        uuid.UUID       `db:"proposer_id" json:"proposer_id"`
	ReceiverID        uuid.UUID       `db:"receiver_id" json:"receiver_id"`
	ProposerProductID *uuid.UUID      `db:"proposer_product_id" json:"proposer_product_id,omitempty"`
	ReceiverProductID uuid.UUID       `db:"receiver_product_id" json:"receiver_product_id"`
	Message           string          `db:"message" json:"message,omitempty"`
	CashDifference    decimal.Decimal `db:"cash_difference" json:"cash_difference"`
	CashFrom          CashFrom        `db:"cash_from" json:"cash_from"`
	Status            TradeStatus     `db:"status" json:"status"`
	ResponseMessage   string          `db:"response_message" json:"response_message,omitempty"`
	RespondedAt       *time.Time      `db:"responded_at" json:"responded_at,omitempty"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	ExpiresAt         time.Time       `db:"expires_at" json:"expires_at"`
	Version           int64           `db:"version" json:"version"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`

	// Дополнительные поля для API
	ProposerProduct *Product  `db:"-" json:"proposer_product,omitempty"`
	ReceiverProduct *Product  `db:"-" json:"receiver_product,omitempty"`
	Proposer        *User     `db:"-" json:"proposer,omitempty"`
	Receiver        *User     `db:"-" json:"receiver,omitempty"`
	ConversationID  uuid.UUID `db:"-" json:"conversation_id,omitempty"`
}

// IsParticipant сообщает, участвует ли пользователь в обмене
func (t *TradeProposal) IsParticipant(userID uuid.UUID) bool {
	return t.ProposerID == userID || t.ReceiverID == userID
}

// Counterpart возвращает второго участника обмена
func (t *TradeProposal) Counterpart(userID uuid.UUID) uuid.UUID {
	if t.ProposerID == userID {
		return t.ReceiverID
	}
	return t.ProposerID
}

// IsExpired сообщает, истек ли срок ответа на предложение
func (t *TradeProposal) IsExpired(now time.Time) bool {
	return t.Status == TradeStatusPending && !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

var tradeTransitions = map[TradeStatus]map[TradeAction]TradeStatus{
	TradeStatusPending: {
		TradeActionAccept: TradeStatusAccepted,
		TradeActionReject: TradeStatusRejected,
		TradeActionCancel: TradeStatusCancelled,
		TradeActionExpire: TradeStatusExpired,
	},
	TradeStatusAccepted: {
		TradeActionComplete: TradeStatusCompleted,
	},
}

// NextTradeStatus возвращает статус после действия или TransitionError,
// если действие недопустимо в текущем статусе
func NextTradeStatus(from TradeStatus, action TradeAction) (TradeStatus, error) {
	if next, ok := tradeTransitions[from][action]; ok {
		return next, nil
	}
	return from, &TransitionError{Entity: "trade proposal", From: string(from), Action: string(action)}
}

// IsTerminal сообщает, является ли статус конечным
func (s TradeStatus) IsTerminal() bool {
	return len(tradeTransitions[s]) == 0
}
