package cloudinary

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/gofiber/fiber/v3"
	logging "github.com/ipfs/go-log/v2"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

var log = logging.Logger("barter-upload")

// CloudinaryService предоставляет методы для работы с Cloudinary
type CloudinaryService struct {
	cfg          *config.Config
	jwtService   *utils.JWTService
	uploadFolder string
	uploadPreset string
	now          func() time.Time
}

// UploadParams содержит подписанные параметры прямой загрузки в Cloudinary
type UploadParams struct {
	Timestamp    string `json:"timestamp"`
	Folder       string `json:"folder"`
	UploadPreset string `json:"upload_preset,omitempty"`
	Signature    string `json:"signature"`
	APIKey       string `json:"api_key"`
	CloudName    string `json:"cloud_name"`
}

// NewCloudinaryService создает новый экземпляр CloudinaryService
func NewCloudinaryService(cfg *config.Config) *CloudinaryService {
	return &CloudinaryService{
		cfg:          cfg,
		jwtService:   utils.NewJWTService(cfg.JWTSecret),
		uploadFolder: cfg.CloudinaryConfig.UploadFolder,
		uploadPreset: cfg.CloudinaryConfig.UploadPreset,
		now:          time.Now,
	}
}

// Sign подписывает параметры загрузки для папки пользователя
func (s *CloudinaryService) Sign(userID string) (*UploadParams, error) {
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	folder := fmt.Sprintf("%s/%s", s.uploadFolder, userID)

	params := url.Values{}
	params.Set("timestamp", timestamp)
	params.Set("folder", folder)
	if s.uploadPreset != "" {
		params.Set("upload_preset", s.uploadPreset)
	}

	signature, err := api.SignParameters(params, s.cfg.CloudinaryConfig.APISecret)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи параметров загрузки: %w", err)
	}

	return &UploadParams{
		Timestamp:    timestamp,
		Folder:       folder,
		UploadPreset: s.uploadPreset,
		Signature:    signature,
		APIKey:       s.cfg.CloudinaryConfig.APIKey,
		CloudName:    s.cfg.CloudinaryConfig.CloudName,
	}, nil
}

// GenerateUploadParams создаёт параметры для загрузки изображений
func (s *CloudinaryService) GenerateUploadParams(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	params, err := s.Sign(actor.ID.String())
	if err != nil {
		log.Errorf("Не удалось подписать загрузку: %v", err)
		return utils.SendError(c, err)
	}
	return c.JSON(params)
}
