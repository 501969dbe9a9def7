package favorite

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

var log = logging.Logger("barter-favorite")

// FavoriteService представляет сервис для работы с избранными товарами
type FavoriteService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	now        func() time.Time
}

// NewFavoriteService создает новый экземпляр FavoriteService
func NewFavoriteService(cfg *config.Config, database *db.DB) *FavoriteService {
	return &FavoriteService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		now:        time.Now,
	}
}

// Add добавляет активный товар в избранное
func (s *FavoriteService) Add(ctx context.Context, userID, productID uuid.UUID) error {
	p, err := db.GetProduct(ctx, s.db, productID)
	if err != nil {
		return err
	}
	if p.Status != models.ProductStatusActive {
		return models.NewValidationError("product_id", "Товар не найден или не активен")
	}
	return db.AddFavorite(ctx, s.db, userID, productID, s.now())
}

// Remove удаляет товар из избранного
func (s *FavoriteService) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	return db.RemoveFavorite(ctx, s.db, userID, productID)
}

// IsFavorite проверяет, находится ли товар в избранном
func (s *FavoriteService) IsFavorite(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	return db.IsFavorite(ctx, s.db, userID, productID)
}

// List возвращает избранное пользователя
func (s *FavoriteService) List(ctx context.Context, userID uuid.UUID, limit, offset int) (models.FavoriteResponse, error) {
	favorites, total, err := db.ListFavorites(ctx, s.db, userID, limit, offset)
	if err != nil {
		return models.FavoriteResponse{}, err
	}
	return models.FavoriteResponse{
		Favorites: favorites,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	}, nil
}

// AddToFavorites добавляет товар в избранное
func (s *FavoriteService) AddToFavorites(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var requestData struct {
		ProductID uuid.UUID `json:"product_id" validate:"required"`
	}
	if err := utils.BindAndValidate(c, &requestData); err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.Add(ctx, actor.ID, requestData.ProductID); err != nil {
		return utils.SendError(c, err)
	}
	log.Debugf("Пользователь %s добавил товар %s в избранное", actor.ID, requestData.ProductID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Товар добавлен в избранное",
	})
}

// RemoveFromFavorites удаляет товар из избранного
func (s *FavoriteService) RemoveFromFavorites(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	productID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.Remove(ctx, actor.ID, productID); err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Товар удален из избранного",
	})
}

// GetFavorites возвращает список избранных товаров пользователя
func (s *FavoriteService) GetFavorites(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	limit, offset := utils.Pagination(c)

	ctx, cancel := db.GetContext()
	defer cancel()

	resp, err := s.List(ctx, actor.ID, limit, offset)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(resp)
}

// CheckFavorite проверяет, находится ли товар в избранном
func (s *FavoriteService) CheckFavorite(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	productID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	ok, err := s.IsFavorite(ctx, actor.ID, productID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"is_favorite": ok})
}
