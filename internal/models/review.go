package models

import (
	"time"

	"github.com/google/uuid"
)

// Review представляет отзыв после завершенного обмена
type Review struct {
	ID              uuid.UUID `db:"id" json:"id"`
	TradeProposalID uuid.UUID `db:"trade_proposal_id" json:"trade_proposal_id"`
	ReviewerID      uuid.UUID `db:"reviewer_id" json:"reviewer_id"`
	ReviewedID      uuid.UUID `db:"reviewed_id" json:"reviewed_id"`
	Rating          int       `db:"rating" json:"rating"`
	Comment         string    `db:"comment" json:"comment,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// RatingSummary содержит агрегированный рейтинг пользователя
type RatingSummary struct {
	Average float64 `db:"average" json:"average"`
	Count   int     `db:"count" json:"count"`
}
