package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// AddFavorite добавляет товар в избранное; повторное добавление игнорируется
func AddFavorite(ctx context.Context, q sqlx.ExtContext, userID, productID uuid.UUID, now time.Time) error {
	_, err := exec(ctx, q, `
		INSERT INTO favorites (id, user_id, product_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, product_id) DO NOTHING`, uuid.New(), userID, productID, now.UTC())
	if err != nil {
		return fmt.Errorf("ошибка добавления в избранное: %w", err)
	}
	return nil
}

// RemoveFavorite удаляет товар из избранного
func RemoveFavorite(ctx context.Context, q sqlx.ExtContext, userID, productID uuid.UUID) error {
	n, err := exec(ctx, q, `DELETE FROM favorites WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return fmt.Errorf("ошибка удаления из избранного: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IsFavorite проверяет, находится ли товар в избранном
func IsFavorite(ctx context.Context, q sqlx.ExtContext, userID, productID uuid.UUID) (bool, error) {
	var count int
	if err := get(ctx, q, &count, `SELECT COUNT(*) FROM favorites WHERE user_id = ? AND product_id = ?`, userID, productID); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListFavorites возвращает избранные товары пользователя и их общее количество
func ListFavorites(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, limit, offset int) ([]models.Favorite, int, error) {
	var total int
	if err := get(ctx, q, &total, `SELECT COUNT(*) FROM favorites WHERE user_id = ?`, userID); err != nil {
		return nil, 0, err
	}
	favorites := []models.Favorite{}
	err := selectAll(ctx, q, &favorites, `
		SELECT id, user_id, product_id, created_at FROM favorites
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения избранного: %w", err)
	}
	for i := range favorites {
		p, err := GetProduct(ctx, q, favorites[i].ProductID)
		if err != nil {
			return nil, 0, err
		}
		favorites[i].Product = p
	}
	return favorites, total, nil
}
