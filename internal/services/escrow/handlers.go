package escrow

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

// CreateEscrow создает эскроу-транзакцию
func (s *EscrowService) CreateEscrow(c fiber.Ctx) error {
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

	escrow, err := s.Create(ctx, actor.ID, input)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "escrow": escrow})
}

// GetEscrow возвращает эскроу по ID
func (s *EscrowService) GetEscrow(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	escrow, err := s.Get(ctx, actor, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"escrow": escrow})
}

// ListEscrows возвращает эскроу текущего пользователя
func (s *EscrowService) ListEscrows(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	limit, offset := utils.Pagination(c)

	ctx, cancel := db.GetContext()
	defer cancel()

	escrows, err := s.List(ctx, actor.ID, models.EscrowStatus(c.Query("status")), limit, offset)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"escrows": escrows, "count": len(escrows)})
}

// UpdateEscrow выполняет действие над эскроу: fund, release, dispute, refund, resolve
func (s *EscrowService) UpdateEscrow(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	var requestData struct {
		Action           string `json:"action" validate:"required,oneof=fund release dispute refund resolve"`
		PaymentReference string `json:"payment_reference" validate:"required_if=Action fund,max=200"`
		Reason           string `json:"reason" validate:"max=2000"`
		Outcome          string `json:"outcome" validate:"omitempty,oneof=release refund"`
	}
	if err := utils.BindAndValidate(c, &requestData); err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	var escrow *models.EscrowTransaction
	switch requestData.Action {
	case "fund":
		escrow, err = s.Fund(ctx, actor, id, requestData.PaymentReference)
	case "release":
		escrow, err = s.Release(ctx, actor, id)
	case "dispute":
		escrow, err = s.Dispute(ctx, actor, id, requestData.Reason)
	case "refund":
		escrow, err = s.Refund(ctx, actor, id)
	case "resolve":
		escrow, err = s.Resolve(ctx, actor, id, requestData.Outcome)
	}
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "escrow": escrow})
}
