package trade

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

// CreateTrade создает новое предложение обмена
func (s *TradeService) CreateTrade(c fiber.Ctx) error {
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

	trade, err := s.Create(ctx, actor.ID, input)
	if err != nil {
		return utils.SendError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"trade_id": trade.ID,
		"trade":    trade,
		"message":  "Предложение обмена успешно создано",
	})
}

// GetMyTrades возвращает список входящих и исходящих предложений обмена
func (s *TradeService) GetMyTrades(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	limit, offset := utils.Pagination(c)
	filter := db.TradeFilter{
		UserID:    actor.ID,
		Direction: c.Query("type", "all"), // all, incoming, outgoing
		Limit:     limit,
		Offset:    offset,
	}
	if status := c.Query("status", "all"); status != "all" {
		filter.Status = models.TradeStatus(status)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	trades, err := s.List(ctx, filter)
	if err != nil {
		return utils.SendError(c, err)
	}

	return c.JSON(fiber.Map{
		"trades": trades,
		"count":  len(trades),
	})
}

// GetTrade возвращает предложение обмена по ID
func (s *TradeService) GetTrade(c fiber.Ctx) error {
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

	trade, err := s.Get(ctx, actor, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"trade": trade})
}

// UpdateTradeStatus обновляет статус предложения обмена (принятие/отклонение/отмена)
func (s *TradeService) UpdateTradeStatus(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	var requestData struct {
		Status  string `json:"status" validate:"required,oneof=accepted rejected cancelled"`
		Message string `json:"message" validate:"max=1000"`
	}
	if err := utils.BindAndValidate(c, &requestData); err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	var trade *models.TradeProposal
	var message string
	switch models.TradeStatus(requestData.Status) {
	case models.TradeStatusCancelled:
		trade, err = s.Cancel(ctx, actor.ID, id)
		message = "Предложение обмена отменено"
	case models.TradeStatusAccepted:
		trade, err = s.Respond(ctx, actor.ID, id, models.TradeStatusAccepted, requestData.Message)
		message = "Предложение обмена принято"
	default:
		trade, err = s.Respond(ctx, actor.ID, id, models.TradeStatusRejected, requestData.Message)
		message = "Предложение обмена отклонено"
	}
	if err != nil {
		return utils.SendError(c, err)
	}

	response := fiber.Map{
		"success":  true,
		"message":  message,
		"trade_id": trade.ID,
		"status":   trade.Status,
		"trade":    trade,
	}
	if trade.Status == models.TradeStatusAccepted {
		response["chat_id"] = trade.ConversationID
	}
	return c.JSON(response)
}

// CompleteTrade завершает принятый обмен
func (s *TradeService) CompleteTrade(c fiber.Ctx) error {
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

	trade, err := s.Complete(ctx, actor.ID, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Обмен завершен",
		"trade":   trade,
	})
}
