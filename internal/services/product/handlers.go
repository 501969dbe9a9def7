package product

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

// CreateProduct обрабатывает создание нового товара
func (s *ProductService) CreateProduct(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	var input ProductInput
	if err := c.Bind().Body(&input); err != nil {
		log.Warnf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	p, err := s.Create(ctx, actor.ID, input)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"product_id": p.ID,
		"product":    p,
		"message":    "Товар успешно создан",
	})
}

// GetMyProducts возвращает список товаров текущего пользователя
func (s *ProductService) GetMyProducts(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	limit, offset := utils.Pagination(c)

	var status models.ProductStatus
	if raw := c.Query("status", "all"); raw != "all" {
		status = models.ProductStatus(raw)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	products, total, err := s.ListMine(ctx, actor.ID, status, limit, offset)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"products": products,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetProduct возвращает товар по ID
func (s *ProductService) GetProduct(c fiber.Ctx) error {
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

	p, err := s.Get(ctx, actor.ID, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{"product": p})
}

// UpdateProduct обновляет товар
func (s *ProductService) UpdateProduct(c fiber.Ctx) error {
	actor, err := utils.CurrentActor(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}

	var input ProductInput
	if err := c.Bind().Body(&input); err != nil {
		log.Warnf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	p, err := s.Update(ctx, actor.ID, id, input)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"product_id": p.ID,
		"product":    p,
		"message":    "Товар успешно обновлен",
	})
}

// ArchiveProduct снимает товар с публикации
func (s *ProductService) ArchiveProduct(c fiber.Ctx) error {
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

	if err := s.Archive(ctx, actor.ID, id); err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Товар перенесен в архив",
	})
}

// GetPublicProducts возвращает список активных товаров с пагинацией
func (s *ProductService) GetPublicProducts(c fiber.Ctx) error {
	limit, offset := utils.Pagination(c)
	filter := db.ProductFilter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Limit:    limit,
		Offset:   offset,
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	products, total, err := s.ListPublic(ctx, filter)
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"products": products,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetUserProducts возвращает активные товары другого пользователя
func (s *ProductService) GetUserProducts(c fiber.Ctx) error {
	userID, err := utils.ParamUUID(c, "id")
	if err != nil {
		return utils.SendError(c, err)
	}
	limit, offset := utils.Pagination(c)

	ctx, cancel := db.GetContext()
	defer cancel()

	products, total, err := db.ListProducts(ctx, s.db, db.ProductFilter{
		UserID: &userID,
		Status: models.ProductStatusActive,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return utils.SendError(c, err)
	}
	return c.JSON(fiber.Map{
		"products": products,
		"total":    total,
		"user_id":  userID,
	})
}
