package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const reviewColumns = `id, trade_proposal_id, reviewer_id, reviewed_id, rating, comment, created_at`

// InsertReview сохраняет отзыв. Второй отзыв того же автора по обмену
// возвращает ErrConflict.
func InsertReview(ctx context.Context, q sqlx.ExtContext, r *models.Review) error {
	n, err := exec(ctx, q, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (trade_proposal_id, reviewer_id) DO NOTHING`,
		r.ID, r.TradeProposalID, r.ReviewerID, r.ReviewedID, r.Rating, r.Comment, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения отзыва: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("review already exists: %w", models.ErrConflict)
	}
	return nil
}

// ListReviewsForUser возвращает отзывы о пользователе
func ListReviewsForUser(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, limit, offset int) ([]models.Review, error) {
	out := []models.Review{}
	err := selectAll(ctx, q, &out, `
		SELECT `+reviewColumns+` FROM reviews WHERE reviewed_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения отзывов: %w", err)
	}
	return out, nil
}

// GetRatingSummary возвращает средний рейтинг и количество отзывов пользователя
func GetRatingSummary(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID) (models.RatingSummary, error) {
	var s models.RatingSummary
	err := get(ctx, q, &s, `
		SELECT COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count
		FROM reviews WHERE reviewed_id = ?`, userID)
	return s, err
}
