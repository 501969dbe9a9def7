package utils

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/rajivgeraev/barter-api/internal/models"
)

var log = logging.Logger("barter-http")

const (
	defaultLimit = 20
	maxLimit     = 100
)

// SendError сопоставляет доменную ошибку со статусом HTTP и отправляет JSON
func SendError(c fiber.Ctx, err error) error {
	var validationErr *models.ValidationError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.Is(err, models.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Не найдено"})
	case errors.Is(err, models.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Недостаточно прав для этого действия"})
	case errors.Is(err, models.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": "invalid_transition"})
	case errors.Is(err, models.ErrConcurrentUpdate):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Запись была изменена другим запросом, повторите попытку", "code": "concurrent_update"})
	case errors.Is(err, models.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": "conflict"})
	case errors.As(err, &fiberErr):
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	log.Errorf("Ошибка обработки запроса %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Внутренняя ошибка сервера"})
}

// CurrentActor возвращает пользователя, установленного AuthMiddleware
func CurrentActor(c fiber.Ctx) (models.Actor, error) {
	userID, _ := c.Locals("userID").(string)
	if userID == "" {
		return models.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "Пользователь не авторизован")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return models.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "Неверный формат ID пользователя")
	}
	role, _ := c.Locals("role").(models.Role)
	if role == "" {
		role = models.RoleUser
	}
	return models.Actor{ID: id, Role: role}, nil
}

// ParamUUID разбирает UUID из параметра пути
func ParamUUID(c fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, models.NewValidationError(name, "неверный формат ID")
	}
	return id, nil
}

// Pagination возвращает limit и offset из query-параметров
func Pagination(c fiber.Ctx) (int, int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// BindAndValidate декодирует тело запроса и проверяет его теги validate
func BindAndValidate(c fiber.Ctx, dst interface{}) error {
	if err := c.Bind().Body(dst); err != nil {
		log.Warnf("Ошибка декодирования тела запроса: %v", err)
		return models.NewValidationError("", "Неверный формат данных")
	}
	return Validate(dst)
}
