package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

func newTestApp(jwtService *utils.JWTService) *fiber.App {
	app := fiber.New()
	whoami := func(c fiber.Ctx) error {
		actor, err := utils.CurrentActor(c)
		if err != nil {
			return utils.SendError(c, err)
		}
		return c.JSON(fiber.Map{"id": actor.ID, "role": actor.Role})
	}
	app.Get("/me", whoami, AuthMiddleware(jwtService))

	admin := app.Group("/admin")
	admin.Use(AuthMiddleware(jwtService))
	admin.Use(RequireRoles(models.RoleAdmin))
	admin.Get("/", whoami)
	return app
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	app := newTestApp(jwtService)

	userToken, err := jwtService.GenerateToken(uuid.New(), models.RoleUser)
	require.NoError(t, err)
	adminToken, err := jwtService.GenerateToken(uuid.New(), models.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/me", "", fiber.StatusUnauthorized},
		{"not bearer", "/me", "Token " + userToken, fiber.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc", fiber.StatusUnauthorized},
		{"valid user", "/me", "Bearer " + userToken, fiber.StatusOK},
		{"user on admin route", "/admin", "Bearer " + userToken, fiber.StatusForbidden},
		{"admin on admin route", "/admin", "Bearer " + adminToken, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
