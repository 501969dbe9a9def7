package review

import (
	"context"
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

var log = logging.Logger("barter-review")

// ReviewService представляет сервис отзывов об участниках обменов
type ReviewService struct {
	cfg        *config.Config
	db         *db.DB
	jwtService *utils.JWTService
	waker      outbox.Waker
	now        func() time.Time
}

// NewReviewService создает новый экземпляр ReviewService
func NewReviewService(cfg *config.Config, database *db.DB, waker outbox.Waker) *ReviewService {
	return &ReviewService{
		cfg:        cfg,
		db:         database,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		waker:      waker,
		now:        time.Now,
	}
}

// CreateInput содержит данные отзыва
type CreateInput struct {
	TradeProposalID uuid.UUID `json:"trade_proposal_id" validate:"required"`
	Rating          int       `json:"rating" validate:"required,min=1,max=5"`
	Comment         string    `json:"comment" validate:"max=2000"`
}

// Create оставляет отзыв о втором участнике завершенного обмена
func (s *ReviewService) Create(ctx context.Context, reviewerID uuid.UUID, in CreateInput) (*models.Review, error) {
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var review *models.Review

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		trade, err := db.GetTradeProposal(ctx, tx, in.TradeProposalID)
		if err != nil {
			return err
		}
		if !trade.IsParticipant(reviewerID) {
			return fmt.Errorf("отзыв может оставить только участник обмена: %w", models.ErrForbidden)
		}
		if trade.Status != models.TradeStatusCompleted {
			return fmt.Errorf("обмен еще не завершен: %w", models.ErrConflict)
		}

		review = &models.Review{
			ID:              uuid.New(),
			TradeProposalID: trade.ID,
			ReviewerID:      reviewerID,
			ReviewedID:      trade.Counterpart(reviewerID),
			Rating:          in.Rating,
			Comment:         strings.TrimSpace(in.Comment),
			CreatedAt:       now,
		}
		if err := db.InsertReview(ctx, tx, review); err != nil {
			return err
		}

		return outbox.Enqueue(ctx, tx, now, outbox.Notice{
			AggregateType: "review",
			AggregateID:   review.ID,
			RecipientID:   review.ReviewedID,
			Type:          models.NotificationNewReview,
			Title:         "Новый отзыв",
			Message:       fmt.Sprintf("Вам поставили оценку %d из 5", review.Rating),
		})
	})
	if err != nil {
		return nil, err
	}

	if s.waker != nil {
		s.waker.Wake()
	}
	log.Infof("Отзыв %s о пользователе %s по обмену %s", review.ID, review.ReviewedID, review.TradeProposalID)
	return review, nil
}

// ListForUser возвращает отзывы о пользователе и его рейтинг
func (s *ReviewService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Review, models.RatingSummary, error) {
	reviews, err := db.ListReviewsForUser(ctx, s.db, userID, limit, offset)
	if err != nil {
		return nil, models.RatingSummary{}, err
	}
	summary, err := db.GetRatingSummary(ctx, s.db, userID)
	if err != nil {
		return nil, models.RatingSummary{}, err
	}
	return reviews, summary, nil
}

// CreateReview создает отзыв
func (s *ReviewService) CreateReview(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var input CreateInput
	if err := c.Bind().Body(&input); err != nil {
		log.Warnf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	review, err := s.Create(ctx, actor.ID, input)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "review": review})
}

// GetUserReviews возвращает отзывы о пользователе
func (s *ReviewService) GetUserReviews(c fiber.Ctx) error {
	userID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}
	limit, offset := utils.Pagination(c)

	ctx, cancel := db.GetContext()
	defer cancel()

	reviews, summary, err := s.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"reviews": reviews,
		"rating":  summary,
	})
}
