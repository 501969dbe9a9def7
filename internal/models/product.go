package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus определяет статус товара
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"
	ProductStatusTraded   ProductStatus = "traded"
)

// ValidConditions содержит допустимые состояния товара
var ValidConditions = map[string]bool{
	"new": true, "excellent": true, "good": true,
	"used": true, "needs_repair": true, "damaged": true,
}

// Product представляет товар (объявление) в системе
type Product struct {
	ID          uuid.UUID           `db:"id" json:"id"`
	UserID      uuid.UUID           `db:"user_id" json:"user_id"`
	Title       string              `db:"title" json:"title"`
	Description string              `db:"description" json:"description"`
	Categories  StringList          `db:"categories" json:"categories"`
	Condition   string              `db:"condition" json:"condition"`
	Price       decimal.NullDecimal `db:"price" json:"price"`
	AllowTrade  bool                `db:"allow_trade" json:"allow_trade"`
	Status      ProductStatus       `db:"status" json:"status"`
	Location    string              `db:"location" json:"location,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`

	Images []ProductImage `db:"-" json:"images"`
	Owner  *User          `db:"-" json:"owner,omitempty"`
}

// ProductImage представляет изображение товара
type ProductImage struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ProductID uuid.UUID `db:"product_id" json:"product_id"`
	URL       string    `db:"url" json:"url"`
	PublicID  string    `db:"public_id" json:"public_id,omitempty"`
	IsMain    bool      `db:"is_main" json:"is_main"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsTradable сообщает, можно ли предложить обмен на товар
func (p *Product) IsTradable() bool {
	return p.Status == ProductStatusActive && p.AllowTrade
}

// StringList хранит список строк в JSON-колонке
type StringList []string

// Value реализует driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan реализует sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for StringList: %T", src)
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}
