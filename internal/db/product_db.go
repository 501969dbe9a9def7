package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/models"
)

const productColumns = `id, user_id, title, description, categories, condition, price,
	allow_trade, status, location, created_at, updated_at`

// ProductFilter задает фильтры списка товаров
type ProductFilter struct {
	UserID   *uuid.UUID
	Status   models.ProductStatus
	Category string
	Search   string
	Limit    int
	Offset   int
}

// InsertProduct сохраняет товар вместе с изображениями
func InsertProduct(ctx context.Context, q sqlx.ExtContext, p *models.Product) error {
	if p.Categories == nil {
		p.Categories = models.StringList{}
	}
	_, err := exec(ctx, q, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, p.Description, p.Categories, p.Condition, p.Price,
		p.AllowTrade, p.Status, p.Location, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения товара: %w", err)
	}
	return replaceProductImages(ctx, q, p)
}

// UpdateProduct обновляет товар и заменяет его изображения
func UpdateProduct(ctx context.Context, q sqlx.ExtContext, p *models.Product) error {
	n, err := exec(ctx, q, `
		UPDATE products SET title = ?, description = ?, categories = ?, condition = ?, price = ?,
			allow_trade = ?, status = ?, location = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Description, p.Categories, p.Condition, p.Price,
		p.AllowTrade, p.Status, p.Location, p.UpdatedAt.UTC(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления товара: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return replaceProductImages(ctx, q, p)
}

func replaceProductImages(ctx context.Context, q sqlx.ExtContext, p *models.Product) error {
	if _, err := exec(ctx, q, `DELETE FROM product_images WHERE product_id = ?`, p.ID); err != nil {
		return fmt.Errorf("ошибка удаления изображений: %w", err)
	}
	for i := range p.Images {
		img := &p.Images[i]
		if img.ID == uuid.Nil {
			img.ID = uuid.New()
		}
		img.ProductID = p.ID
		img.Position = i
		if img.CreatedAt.IsZero() {
			img.CreatedAt = p.UpdatedAt
		}
		_, err := exec(ctx, q, `
			INSERT INTO product_images (id, product_id, url, public_id, is_main, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			img.ID, img.ProductID, img.URL, img.PublicID, img.IsMain, img.Position, img.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("ошибка сохранения изображения: %w", err)
		}
	}
	return nil
}

// GetProduct возвращает товар с изображениями
func GetProduct(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	if err := get(ctx, q, &p, `SELECT `+productColumns+` FROM products WHERE id = ?`, id); err != nil {
		return nil, err
	}
	if err := attachImages(ctx, q, []*models.Product{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts возвращает товары по фильтру и общее количество
func ListProducts(ctx context.Context, q sqlx.ExtContext, f ProductFilter) ([]models.Product, int, error) {
	var where []string
	var args []interface{}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		where = append(where, "CAST(categories AS TEXT) LIKE ?")
		args = append(args, `%"`+f.Category+`"%`)
	}
	if f.Search != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := get(ctx, q, &total, `SELECT COUNT(*) FROM products`+clause, args...); err != nil {
		return nil, 0, err
	}

	products := []models.Product{}
	query := `SELECT ` + productColumns + ` FROM products` + clause + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if err := selectAll(ctx, q, &products, query, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, err
	}

	ptrs := make([]*models.Product, len(products))
	for i := range products {
		ptrs[i] = &products[i]
	}
	if err := attachImages(ctx, q, ptrs); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func attachImages(ctx context.Context, q sqlx.ExtContext, products []*models.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(products))
	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i, p := range products {
		ids[i] = p.ID
		byID[p.ID] = p
		p.Images = []models.ProductImage{}
	}
	query, args, err := sqlx.In(`
		SELECT id, product_id, url, public_id, is_main, position, created_at
		FROM product_images WHERE product_id IN (?) ORDER BY position`, ids)
	if err != nil {
		return err
	}
	var images []models.ProductImage
	if err := selectAll(ctx, q, &images, query, args...); err != nil {
		return fmt.Errorf("ошибка загрузки изображений: %w", err)
	}
	for _, img := range images {
		if p, ok := byID[img.ProductID]; ok {
			p.Images = append(p.Images, img)
		}
	}
	return nil
}

// SetProductStatus меняет статус товаров
func SetProductStatus(ctx context.Context, q sqlx.ExtContext, status models.ProductStatus, now time.Time, ids ...uuid.UUID) error {
	for _, id := range ids {
		if _, err := exec(ctx, q, `UPDATE products SET status = ?, updated_at = ? WHERE id = ?`, status, now.UTC(), id); err != nil {
			return fmt.Errorf("ошибка обновления статуса товара: %w", err)
		}
	}
	return nil
}
