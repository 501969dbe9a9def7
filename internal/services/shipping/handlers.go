package shipping

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

// CreateShipment регистрирует отправление
func (s *ShippingService) CreateShipment(c fiber.Ctx) error {
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

	order, err := s.Create(ctx, actor.ID, input)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "shipment": order})
}

// GetShipment возвращает отправление по ID
func (s *ShippingService) GetShipment(c fiber.Ctx) error {
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

	order, err := s.Get(ctx, actor, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"shipment": order})
}

// GetTradeShipments возвращает отправления по обмену
func (s *ShippingService) GetTradeShipments(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	tradeID, err := utils.ParamUUID(c, "tradeId")
	if err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	orders, err := s.ListForTrade(ctx, actor, tradeID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"shipments": orders, "count": len(orders)})
}

// UpdateShipmentStatus меняет статус отправления
func (s *ShippingService) UpdateShipmentStatus(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	var requestData struct {
		Action         string `json:"action" validate:"required,oneof=ship in_transit deliver cancel"`
		TrackingNumber string `json:"tracking_number" validate:"max=100"`
	}
	if err := utils.BindAndValidate(c, &requestData); err != nil {
		return utils.SendError(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	order, err := s.Advance(ctx, actor.ID, id, models.ShippingAction(requestData.Action), requestData.TrackingNumber)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "shipment": order})
}
