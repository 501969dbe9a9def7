package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

var log = logging.Logger("barter-product")

// RequestImage представляет изображение в запросе создания товара
type RequestImage struct {
	URL      string `json:"url" validate:"required,url"`
	PublicID string `json:"public_id"`
	IsMain   bool   `json:"is_main"`
}

// ProductInput содержит редактируемые поля товара
type ProductInput struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description" validate:"max=5000"`
	Categories  []string            `json:"categories" validate:"max=10,dive,required,max=50"`
	Condition   string              `json:"condition"`
	AllowTrade  bool                `json:"allow_trade"`
	Price       decimal.NullDecimal `json:"price"`
	Status      string              `json:"status"`
	Location    string              `json:"location" validate:"max=200"`
	Images      []RequestImage      `json:"images" validate:"max=10,dive"`
}

// ProductService представляет сервис для работы с товарами
type ProductService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	now        func() time.Time
}

// NewProductService создает новый экземпляр ProductService
func NewProductService(cfg *config.Config, database *db.DB) *ProductService {
	return &ProductService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		now:        time.Now,
	}
}

// prepare проверяет ввод и приводит значения по умолчанию
func (in *ProductInput) prepare() error {
	in.Title = strings.TrimSpace(in.Title)
	if err := utils.Validate(in); err != nil {
		return err
	}

	// По умолчанию - черновик
	if in.Status != string(models.ProductStatusActive) {
		in.Status = string(models.ProductStatusDraft)
	}
	// По умолчанию - новое
	if !models.ValidConditions[in.Condition] {
		in.Condition = "new"
	}
	if in.Price.Valid && in.Price.Decimal.IsNegative() {
		return models.NewValidationError("price", "цена не может быть отрицательной")
	}

	if in.Status == string(models.ProductStatusActive) {
		if len(in.Categories) == 0 {
			return models.NewValidationError("categories", "Выберите хотя бы одну категорию")
		}
		if len(in.Images) == 0 {
			return models.NewValidationError("images", "Добавьте хотя бы одно изображение")
		}
	}
	return nil
}

func (in *ProductInput) apply(p *models.Product) {
	p.Title = in.Title
	p.Description = in.Description
	p.Categories = models.StringList(in.Categories)
	p.Condition = in.Condition
	p.AllowTrade = in.AllowTrade
	p.Price = in.Price
	p.Status = models.ProductStatus(in.Status)
	p.Location = in.Location

	hasMain := false
	for _, img := range in.Images {
		hasMain = hasMain || img.IsMain
	}
	p.Images = make([]models.ProductImage, len(in.Images))
	for i, img := range in.Images {
		p.Images[i] = models.ProductImage{
			URL:      img.URL,
			PublicID: img.PublicID,
			// Первое изображение - основное, если не указано иное
			IsMain: img.IsMain || (!hasMain && i == 0),
		}
	}
}

// Create создает товар пользователя
func (s *ProductService) Create(ctx context.Context, userID uuid.UUID, in ProductInput) (*models.Product, error) {
	if err := in.prepare(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &models.Product{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(p)

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return db.InsertProduct(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Создан товар %s пользователем %s", p.ID, userID)
	return p, nil
}

// Update обновляет товар владельца. Обменянный или архивный товар не редактируется.
func (s *ProductService) Update(ctx context.Context, userID, id uuid.UUID, in ProductInput) (*models.Product, error) {
	if err := in.prepare(); err != nil {
		return nil, err
	}
	var p *models.Product
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = s.owned(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if p.Status == models.ProductStatusTraded || p.Status == models.ProductStatusArchived {
			return &models.TransitionError{Entity: "product", From: string(p.Status), Action: "update"}
		}
		in.apply(p)
		p.UpdatedAt = s.now().UTC()
		return db.UpdateProduct(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Archive снимает товар с публикации
func (s *ProductService) Archive(ctx context.Context, userID, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		p, err := s.owned(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if p.Status == models.ProductStatusTraded {
			return &models.TransitionError{Entity: "product", From: string(p.Status), Action: "archive"}
		}
		return db.SetProductStatus(ctx, tx, models.ProductStatusArchived, s.now(), id)
	})
}

func (s *ProductService) owned(ctx context.Context, q sqlx.ExtContext, userID, id uuid.UUID) (*models.Product, error) {
	p, err := db.GetProduct(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("товар принадлежит другому пользователю: %w", models.ErrForbidden)
	}
	return p, nil
}

// Get возвращает товар. Черновики и архив видны только владельцу.
func (s *ProductService) Get(ctx context.Context, viewerID uuid.UUID, id uuid.UUID) (*models.Product, error) {
	p, err := db.GetProduct(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != viewerID && (p.Status == models.ProductStatusDraft || p.Status == models.ProductStatusArchived) {
		return nil, models.ErrNotFound
	}
	users, err := db.GetUserBriefs(ctx, s.db, []uuid.UUID{p.UserID})
	if err != nil {
		return nil, err
	}
	p.Owner = users[p.UserID]
	return p, nil
}

// ListPublic возвращает активные товары
func (s *ProductService) ListPublic(ctx context.Context, f db.ProductFilter) ([]models.Product, int, error) {
	f.Status = models.ProductStatusActive
	f.UserID = nil
	products, total, err := db.ListProducts(ctx, s.db, f)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachOwners(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// ListMine возвращает товары пользователя
func (s *ProductService) ListMine(ctx context.Context, userID uuid.UUID, status models.ProductStatus, limit, offset int) ([]models.Product, int, error) {
	return db.ListProducts(ctx, s.db, db.ProductFilter{
		UserID: &userID,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *ProductService) attachOwners(ctx context.Context, products []models.Product) error {
	ids := make([]uuid.UUID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.UserID)
	}
	users, err := db.GetUserBriefs(ctx, s.db, ids)
	if err != nil {
		return err
	}
	for i := range products {
		products[i].Owner = users[products[i].UserID]
	}
	return nil
}
