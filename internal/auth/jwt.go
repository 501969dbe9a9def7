package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rajivgeraev/barter-api/internal/models"
)

// Claims содержит данные пользователя в JWT
type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor возвращает пользователя, от имени которого выполняется запрос
func (c *Claims) Actor() (models.Actor, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return models.Actor{}, err
	}
	role := c.Role
	if role == "" {
		role = models.RoleUser
	}
	return models.Actor{ID: id, Role: role}, nil
}
