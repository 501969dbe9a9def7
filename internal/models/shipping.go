package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShippingStatus определяет статус отправления
type ShippingStatus string

const (
	ShippingStatusPending   ShippingStatus = "pending"
	ShippingStatusShipped   ShippingStatus = "shipped"
	ShippingStatusInTransit ShippingStatus = "in_transit"
	ShippingStatusDelivered ShippingStatus = "delivered"
	ShippingStatusCancelled ShippingStatus = "cancelled"
)

// ShippingAction определяет действие над отправлением
type ShippingAction string

const (
	ShippingActionShip    ShippingAction = "ship"
	ShippingActionTransit ShippingAction = "in_transit"
	ShippingActionDeliver ShippingAction = "deliver"
	ShippingActionCancel  ShippingAction = "cancel"
)

// ShippingOrder представляет отправку товара по обмену
type ShippingOrder struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	TradeProposalID uuid.UUID      `db:"trade_proposal_id" json:"trade_proposal_id"`
	SenderID        uuid.UUID      `db:"sender_id" json:"sender_id"`
	ReceiverID      uuid.UUID      `db:"receiver_id" json:"receiver_id"`
	Carrier         string         `db:"carrier" json:"carrier"`
	TrackingNumber  string         `db:"tracking_number" json:"tracking_number,omitempty"`
	Address         string         `db:"address" json:"address"`
	Status          ShippingStatus `db:"status" json:"status"`
	ShippedAt       *time.Time     `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
	Version         int64          `db:"version" json:"version"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`

	TrackingURL string `db:"-" json:"tracking_url,omitempty"`
}

var shippingTransitions = map[ShippingStatus]map[ShippingAction]ShippingStatus{
	ShippingStatusPending: {
		ShippingActionShip:   ShippingStatusShipped,
		ShippingActionCancel: ShippingStatusCancelled,
	},
	ShippingStatusShipped: {
		ShippingActionTransit: ShippingStatusInTransit,
		ShippingActionDeliver: ShippingStatusDelivered,
	},
	ShippingStatusInTransit: {
		ShippingActionDeliver: ShippingStatusDelivered,
	},
}

// NextShippingStatus возвращает статус после действия или TransitionError
func NextShippingStatus(from ShippingStatus, action ShippingAction) (ShippingStatus, error) {
	if next, ok := shippingTransitions[from][action]; ok {
		return next, nil
	}
	return from, &TransitionError{Entity: "shipping order", From: string(from), Action: string(action)}
}

// Шаблоны ссылок отслеживания; %s заменяется трек-номером
var carrierTrackingTemplates = map[string]string{
	"dhl":    "https://www.dhl.com/en/express/tracking.html?AWB=%s",
	"ups":    "https://www.ups.com/track?tracknum=%s",
	"fedex":  "https://www.fedex.com/fedextrack/?trknbr=%s",
	"usps":   "https://tools.usps.com/go/TrackConfirmAction?tLabels=%s",
	"cdek":   "https://www.cdek.ru/ru/tracking?order_id=%s",
	"pochta": "https://www.pochta.ru/tracking#%s",
}

// IsKnownCarrier сообщает, поддерживается ли перевозчик
func IsKnownCarrier(carrier string) bool {
	_, ok := carrierTrackingTemplates[strings.ToLower(carrier)]
	return ok
}

// TrackingURL строит ссылку отслеживания для перевозчика.
// Для неизвестного перевозчика или пустого номера возвращает пустую строку.
func TrackingURL(carrier, trackingNumber string) string {
	tmpl, ok := carrierTrackingTemplates[strings.ToLower(carrier)]
	trackingNumber = strings.TrimSpace(trackingNumber)
	if !ok || trackingNumber == "" {
		return ""
	}
	return strings.Replace(tmpl, "%s", trackingNumber, 1)
}
