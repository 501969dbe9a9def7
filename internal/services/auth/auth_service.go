package auth

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

var log = logging.Logger("barter-auth")

// initDataTTL ограничивает возраст данных запуска Mini App
const initDataTTL = 24 * time.Hour

// AuthService – структура для обработки авторизации и профилей
type AuthService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	now        func() time.Time
}

// NewAuthService – конструктор AuthService
func NewAuthService(cfg *config.Config, database *db.DB) *AuthService {
	return &AuthService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		now:        time.Now,
	}
}

// PublicProfile содержит публичные данные пользователя и его рейтинг
type PublicProfile struct {
	*models.User
	Bio         string               `json:"bio,omitempty"`
	Location    string               `json:"location,omitempty"`
	KYCVerified bool                 `json:"kyc_verified"`
	CreatedAt   time.Time            `json:"created_at"`
	Rating      models.RatingSummary `json:"rating"`
}

// Login проверяет initData, сохраняет профиль и выпускает JWT
func (s *AuthService) Login(ctx context.Context, rawInitData string) (string, *models.Profile, error) {
	if err := initdata.Validate(rawInitData, s.cfg.TelegramBotToken, initDataTTL); err != nil {
		log.Warnf("Невалидные данные Telegram: %v", err)
		return "", nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid Telegram data")
	}

	data, err := initdata.Parse(rawInitData)
	if err != nil {
		return "", nil, models.NewValidationError("init_data", "Failed to parse initData")
	}
	if data.User.ID == 0 {
		return "", nil, models.NewValidationError("init_data", "в initData нет пользователя")
	}

	role := models.RoleUser
	if s.cfg.IsAdminTelegramID(data.User.ID) {
		role = models.RoleAdmin
	}

	profile, err := db.UpsertTelegramProfile(ctx, s.db, models.Profile{
		TelegramID: data.User.ID,
		Username:   data.User.Username,
		FirstName:  data.User.FirstName,
		LastName:   data.User.LastName,
		AvatarURL:  data.User.PhotoURL,
		Role:       role,
	}, s.now())
	if err != nil {
		return "", nil, err
	}

	token, err := s.jwtService.GenerateToken(profile.ID, profile.Role)
	if err != nil {
		return "", nil, err
	}

	log.Infof("Пользователь %s (telegram %d) вошел, роль %s", profile.ID, profile.TelegramID, profile.Role)
	return token, profile, nil
}

// UpdateMe обновляет редактируемые поля профиля
func (s *AuthService) UpdateMe(ctx context.Context, userID uuid.UUID, bio, location string) (*models.Profile, error) {
	if err := db.UpdateProfile(ctx, s.db, userID, strings.TrimSpace(bio), strings.TrimSpace(location), s.now()); err != nil {
		return nil, err
	}
	return db.GetProfile(ctx, s.db, userID)
}

// Public возвращает публичный профиль с рейтингом
func (s *AuthService) Public(ctx context.Context, userID uuid.UUID) (*PublicProfile, error) {
	p, err := db.GetProfile(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	rating, err := db.GetRatingSummary(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return &PublicProfile{
		User:        p.Brief(),
		Bio:         p.Bio,
		Location:    p.Location,
		KYCVerified: p.KYCVerified,
		CreatedAt:   p.CreatedAt,
		Rating:      rating,
	}, nil
}

// TelegramAuthHandler проверяет initData, создает JWT и возвращает его
func (s *AuthService) TelegramAuthHandler(c fiber.Ctx) error {
	var payload struct {
		InitData string `json:"init_data"`
	}

	if err := c.Bind().Body(&payload); err != nil || payload.InitData == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	token, profile, err := s.Login(ctx, payload.InitData)
	if err != nil {
		return utils.SendError(c, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  profile,
	})
}

// GetProfile возвращает профиль текущего пользователя
func (s *AuthService) GetProfile(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	profile, err := db.GetProfile(ctx, s.db, actor.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"profile": profile})
}

// UpdateProfile обновляет био и местоположение
func (s *AuthService) UpdateProfile(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var requestData struct {
		Bio      string `json:"bio" validate:"max=1000"`
		Location string `json:"location" validate:"max=200"`
	}
	if err := utils.BindAndValidate(c, &requestData); err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	profile, err := s.UpdateMe(ctx, actor.ID, requestData.Bio, requestData.Location)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "profile": profile})
}

// GetPublicProfile возвращает публичный профиль пользователя
func (s *AuthService) GetPublicProfile(c fiber.Ctx) error {
	userID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	profile, err := s.Public(ctx, userID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"user": profile})
}
