package kyc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/outbox"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

var log = logging.Logger("barter-kyc")

// KYCService принимает заявки на проверку личности и решения модераторов
type KYCService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	waker      outbox.Waker
	now        func() time.Time
}

// NewKYCService создает новый экземпляр KYCService
func NewKYCService(cfg *config.Config, database *db.DB, waker outbox.Waker) *KYCService {
	return &KYCService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		waker:      waker,
		now:        time.Now,
	}
}

// SubmitInput содержит данные заявки
type SubmitInput struct {
	DocumentType   string `json:"document_type" validate:"required"`
	DocumentNumber string `json:"document_number" validate:"required,max=64"`
	FrontImageURL  string `json:"front_image_url" validate:"required,url"`
	BackImageURL   string `json:"back_image_url" validate:"omitempty,url"`
	SelfieURL      string `json:"selfie_url" validate:"omitempty,url"`
}

// Submit создает заявку. Пока у пользователя есть заявка на рассмотрении
// или одобренная заявка, новую подать нельзя.
func (s *KYCService) Submit(ctx context.Context, userID uuid.UUID, in SubmitInput) (*models.KYCVerification, error) {
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}
	docType := strings.ToLower(strings.TrimSpace(in.DocumentType))
	if !models.ValidDocumentTypes[docType] {
		return nil, models.NewValidationError("document_type", "недопустимый тип документа")
	}

	now := s.now().UTC()
	var k *models.KYCVerification

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		active, err := db.CountActiveKYCVerifications(ctx, tx, userID)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("заявка уже на рассмотрении или одобрена: %w", models.ErrConflict)
		}

		k = &models.KYCVerification{
			ID:             uuid.New(),
			UserID:         userID,
			DocumentType:   docType,
			DocumentNumber: strings.TrimSpace(in.DocumentNumber),
			FrontImageURL:  in.FrontImageURL,
			BackImageURL:   in.BackImageURL,
			SelfieURL:      in.SelfieURL,
			Status:         models.KYCStatusPending,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return db.InsertKYCVerification(ctx, tx, k)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Пользователь %s подал заявку KYC %s", userID, k.ID)
	return k, nil
}

// Review применяет решение модератора и обновляет отметку в профиле
func (s *KYCService) Review(ctx context.Context, reviewer models.Actor, id uuid.UUID, decision models.KYCStatus, reason string) (*models.KYCVerification, error) {
	if !reviewer.IsAdmin() {
		return nil, fmt.Errorf("рассматривать заявки может только администратор: %w", models.ErrForbidden)
	}
	reason = strings.TrimSpace(reason)
	if decision == models.KYCStatusRejected && reason == "" {
		return nil, models.NewValidationError("reason", "укажите причину отказа")
	}
	if decision == models.KYCStatusApproved {
		reason = ""
	}

	now := s.now().UTC()
	var k *models.KYCVerification

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		k, err = db.GetKYCVerification(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := models.NextKYCStatus(k.Status, decision)
		if err != nil {
			return err
		}
		if err := db.UpdateKYCStatus(ctx, tx, k, next, reviewer.ID, reason, now); err != nil {
			return err
		}
		if err := db.SetKYCVerified(ctx, tx, k.UserID, next == models.KYCStatusApproved, now); err != nil {
			return err
		}

		notice := outbox.Notice{
			AggregateType: "kyc_verification",
			AggregateID:   k.ID,
			RecipientID:   k.UserID,
			Type:          models.NotificationKYCApproved,
			Title:         "Личность подтверждена",
			Message:       "Ваша заявка на проверку личности одобрена",
		}
		if next == models.KYCStatusRejected {
			notice.Type = models.NotificationKYCRejected
			notice.Title = "Заявка отклонена"
			notice.Message = reason
		}
		if err := outbox.Enqueue(ctx, tx, now, notice); err != nil {
			return err
		}

		k.Status = next
		k.RejectionReason = reason
		k.ReviewedBy = &reviewer.ID
		k.ReviewedAt = &now
		k.Version++
		k.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.waker != nil {
		s.waker.Wake()
	}
	log.Infof("Заявка KYC %s: %s (модератор %s)", k.ID, k.Status, reviewer.ID)
	return k, nil
}

// GetMine возвращает последнюю заявку пользователя или nil
func (s *KYCService) GetMine(ctx context.Context, userID uuid.UUID) (*models.KYCVerification, error) {
	k, err := db.GetLatestKYCVerification(ctx, s.db, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return k, err
}

// ListPending возвращает заявки, ожидающие решения
func (s *KYCService) ListPending(ctx context.Context, limit, offset int) ([]models.KYCVerification, error) {
	return db.ListKYCVerificationsByStatus(ctx, s.db, models.KYCStatusPending, limit, offset)
}

// SubmitVerification принимает заявку на проверку личности
func (s *KYCService) SubmitVerification(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var input SubmitInput
	if err := c.Bind().Body(&input); err != nil {
		log.Warnf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	k, err := s.Submit(ctx, actor.ID, input)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "verification": k})
}

// GetMyVerification возвращает статус проверки текущего пользователя
func (s *KYCService) GetMyVerification(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	k, err := s.GetMine(ctx, actor.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	if k == nil {
		return c.JSON(fiber.Map{"status": "not_submitted"})
	}
	return c.JSON(fiber.Map{"status": k.Status, "verification": k})
}

// GetPendingVerifications возвращает очередь модерации
func (s *KYCService) GetPendingVerifications(c fiber.Ctx) error {
	limit, offset := utils.Pagination(c)

	ctx, cancel := db.GetContext()
	defer cancel()

	list, err := s.ListPending(ctx, limit, offset)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"verifications": list, "count": len(list)})
}

// ReviewVerification применяет решение модератора
func (s *KYCService) ReviewVerification(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	var requestData struct {
		Status string `json:"status" validate:"required,oneof=approved rejected"`
		Reason string `json:"reason" validate:"max=500"`
	}
	if err := utils.BindAndValidate(c, &requestData); err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	k, err := s.Review(ctx, actor, id, models.KYCStatus(requestData.Status), requestData.Reason)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "verification": k})
}
