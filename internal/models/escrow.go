package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStatus определяет статус эскроу-транзакции
type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusFunded   EscrowStatus = "funded"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
	EscrowStatusDisputed EscrowStatus = "disputed"
)

// EscrowAction определяет действие над эскроу
type EscrowAction string

const (
	EscrowActionFund           EscrowAction = "fund"
	EscrowActionRelease        EscrowAction = "release"
	EscrowActionDispute        EscrowAction = "dispute"
	EscrowActionRefund         EscrowAction = "refund"
	EscrowActionResolveRelease EscrowAction = "resolve_release"
	EscrowActionResolveRefund  EscrowAction = "resolve_refund"
)

// EscrowTransaction представляет запись об эскроу-платеже.
// Средства не удерживаются, запись фиксирует только статус.
type EscrowTransaction struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	TradeProposalID  *uuid.UUID      `db:"trade_proposal_id" json:"trade_proposal_id,omitempty"`
	PayerID          uuid.UUID       `db:"payer_id" json:"payer_id"`
	ReceiverID       uuid.UUID       `db:"receiver_id" json:"receiver_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	Status           EscrowStatus    `db:"status" json:"status"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference string          `db:"payment_reference" json:"payment_reference,omitempty"`
	DisputeReason    string          `db:"dispute_reason" json:"dispute_reason,omitempty"`
	FundedAt         *time.Time      `db:"funded_at" json:"funded_at,omitempty"`
	ReleasedAt       *time.Time      `db:"released_at" json:"released_at,omitempty"`
	RefundedAt       *time.Time      `db:"refunded_at" json:"refunded_at,omitempty"`
	Version          int64           `db:"version" json:"version"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// IsParticipant сообщает, является ли пользователь стороной эскроу
func (e *EscrowTransaction) IsParticipant(userID uuid.UUID) bool {
	return e.PayerID == userID || e.ReceiverID == userID
}

var escrowTransitions = map[EscrowStatus]map[EscrowAction]EscrowStatus{
	EscrowStatusPending: {
		EscrowActionFund: EscrowStatusFunded,
	},
	EscrowStatusFunded: {
		EscrowActionRelease: EscrowStatusReleased,
		EscrowActionDispute: EscrowStatusDisputed,
		EscrowActionRefund:  EscrowStatusRefunded,
	},
	EscrowStatusDisputed: {
		EscrowActionResolveRelease: EscrowStatusReleased,
		EscrowActionResolveRefund:  EscrowStatusRefunded,
	},
}

// NextEscrowStatus возвращает статус после действия или TransitionError
func NextEscrowStatus(from EscrowStatus, action EscrowAction) (EscrowStatus, error) {
	if next, ok := escrowTransitions[from][action]; ok {
		return next, nil
	}
	return from, &TransitionError{Entity: "escrow", From: string(from), Action: string(action)}
}

// AuthorizeEscrowAction проверяет, может ли пользователь выполнить действие
func AuthorizeEscrowAction(e *EscrowTransaction, action EscrowAction, actor Actor) error {
	allowed := false
	switch action {
	case EscrowActionFund:
		allowed = actor.ID == e.PayerID
	case EscrowActionRelease:
		allowed = actor.ID == e.PayerID || actor.IsAdmin()
	case EscrowActionDispute:
		allowed = e.IsParticipant(actor.ID)
	case EscrowActionRefund:
		allowed = actor.ID == e.ReceiverID || actor.IsAdmin()
	case EscrowActionResolveRelease, EscrowActionResolveRefund:
		allowed = actor.IsAdmin()
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}
