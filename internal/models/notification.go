package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// NotificationType определяет тип уведомления
type NotificationType string

const (
	NotificationTradeProposal  NotificationType = "trade_proposal"
	NotificationTradeAccepted  NotificationType = "trade_accepted"
	NotificationTradeRejected  NotificationType = "trade_rejected"
	NotificationTradeCancelled NotificationType = "trade_cancelled"
	NotificationTradeCompleted NotificationType = "trade_completed"
	NotificationTradeExpired   NotificationType = "trade_expired"
	NotificationNewMessage     NotificationType = "new_message"
	NotificationEscrowCreated  NotificationType = "escrow_created"
	NotificationEscrowFunded   NotificationType = "escrow_funded"
	NotificationEscrowReleased NotificationType = "escrow_released"
	NotificationEscrowDisputed NotificationType = "escrow_disputed"
	NotificationEscrowRefunded NotificationType = "escrow_refunded"
	NotificationNewReview      NotificationType = "new_review"
	NotificationShipmentSent   NotificationType = "shipment_shipped"
	NotificationShipmentDone   NotificationType = "shipment_delivered"
	NotificationKYCApproved    NotificationType = "kyc_approved"
	NotificationKYCRejected    NotificationType = "kyc_rejected"
)

// Notification представляет уведомление пользователя
type Notification struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	UserID        uuid.UUID        `db:"user_id" json:"user_id"`
	Type          NotificationType `db:"type" json:"type"`
	Title         string           `db:"title" json:"title"`
	Message       string           `db:"message" json:"message"`
	ReferenceID   *uuid.UUID       `db:"reference_id" json:"reference_id,omitempty"`
	ReferenceType string           `db:"reference_type" json:"reference_type,omitempty"`
	Read          bool             `db:"read" json:"read"`
	ReadAt        *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// OutboxStatus определяет состояние события в outbox
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusDelivered OutboxStatus = "delivered"
	OutboxStatusDead      OutboxStatus = "dead"
)

// OutboxEvent представляет намерение уведомить пользователя,
// записанное в одной транзакции с изменением, которое его вызвало
type OutboxEvent struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	AggregateType string           `db:"aggregate_type" json:"aggregate_type"`
	AggregateID   uuid.UUID        `db:"aggregate_id" json:"aggregate_id"`
	EventType     NotificationType `db:"event_type" json:"event_type"`
	RecipientID   uuid.UUID        `db:"recipient_id" json:"recipient_id"`
	Payload       types.JSONText   `db:"payload" json:"payload"`
	Status        OutboxStatus     `db:"status" json:"status"`
	Attempts      int              `db:"attempts" json:"attempts"`
	NextAttemptAt time.Time        `db:"next_attempt_at" json:"next_attempt_at"`
	LockedUntil   *time.Time       `db:"locked_until" json:"locked_until,omitempty"`
	LastError     string           `db:"last_error" json:"last_error,omitempty"`
	DeliveredAt   *time.Time       `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// NotificationPayload содержит данные уведомления внутри события outbox
type NotificationPayload struct {
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	ReferenceType string     `json:"reference_type,omitempty"`
}
