package models

import (
	"time"

	"github.com/google/uuid"
)

// Favorite представляет запись избранного товара
type Favorite struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	ProductID uuid.UUID `db:"product_id" json:"product_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// Дополнительные поля для API
	Product *Product `db:"-" json:"product,omitempty"`
}

// FavoriteResponse представляет структуру ответа API с избранными товарами
type FavoriteResponse struct {
	Favorites []Favorite `json:"favorites"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
