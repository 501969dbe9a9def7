package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/testutil"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

const adminTelegramID = 777001

func newTestService(t *testing.T) (*AuthService, *db.DB) {
	t.Helper()

	database := testutil.NewDB(t)
	cfg := config.NewTestConfig()
	cfg.AdminTelegramIDs = map[int64]bool{adminTelegramID: true}
	return NewAuthService(cfg, database), database
}

// signInitData собирает initData так, как его передает Telegram Mini App
func signInitData(t *testing.T, token string, telegramID int64, username string) string {
	t.Helper()

	authDate := time.Now()
	payload := map[string]string{
		"query_id": "AAHdF6IQAAAAAN0XohDhrOrc",
		"user":     fmt.Sprintf(`{"id":%d,"first_name":"Test","username":%q}`, telegramID, username),
	}
	values := url.Values{}
	for k, v := range payload {
		values.Set(k, v)
	}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("hash", initdata.Sign(payload, token, authDate))
	return values.Encode()
}

func TestLogin(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	token, profile, err := s.Login(ctx, signInitData(t, "test-token", 5001, "alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(5001), profile.TelegramID)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, models.RoleUser, profile.Role)
	require.NotNil(t, profile.LastLoginAt)

	claims, err := utils.NewJWTService("test-secret").ExtractClaims(token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID.String(), claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)

	// Повторный вход обновляет тот же профиль
	_, again, err := s.Login(ctx, signInitData(t, "test-token", 5001, "alice_new"))
	require.NoError(t, err)
	assert.Equal(t, profile.ID, again.ID)
	assert.Equal(t, "alice_new", again.Username)
}

func TestLoginAdminFromConfig(t *testing.T) {
	s, _ := newTestService(t)

	token, profile, err := s.Login(context.Background(), signInitData(t, "test-token", adminTelegramID, "moderator"))
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, profile.Role)

	claims, err := utils.NewJWTService("test-secret").ExtractClaims(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLoginRejectsInvalidInitData(t *testing.T) {
	s, _ := newTestService(t)

	tampered, err := url.ParseQuery(signInitData(t, "test-token", 5002, "bob"))
	require.NoError(t, err)
	tampered.Set("user", `{"id":5003,"first_name":"Mallory"}`)

	tests := []struct {
		name     string
		initData string
	}{
		{"foreign bot token", signInitData(t, "other-token", 5002, "bob")},
		{"tampered user", tampered.Encode()},
		{"no hash", "user=%7B%22id%22%3A1%7D&auth_date=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Login(context.Background(), tt.initData)
			var fiberErr *fiber.Error
			require.True(t, errors.As(err, &fiberErr), err)
			assert.Equal(t, fiber.StatusUnauthorized, fiberErr.Code)
		})
	}
}

func TestUpdateMeAndPublic(t *testing.T) {
	s, database := newTestService(t)
	ctx := context.Background()
	seller := testutil.SeedUser(t, database, "seller")
	buyer := testutil.SeedUser(t, database, "buyer")
	product := testutil.SeedProduct(t, database, seller.ID, "Палатка")

	updated, err := s.UpdateMe(ctx, seller.ID, "  Люблю походы ", " Казань ")
	require.NoError(t, err)
	assert.Equal(t, "Люблю походы", updated.Bio)
	assert.Equal(t, "Казань", updated.Location)

	for _, rating := range []int{4, 5} {
		trade := testutil.SeedTrade(t, database, buyer.ID, product, models.TradeStatusCompleted)
		require.NoError(t, db.InsertReview(ctx, database, &models.Review{
			ID:              uuid.New(),
			TradeProposalID: trade.ID,
			ReviewerID:      buyer.ID,
			ReviewedID:      seller.ID,
			Rating:          rating,
			CreatedAt:       time.Now(),
		}))
	}

	public, err := s.Public(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "seller", public.Username)
	assert.Equal(t, "Казань", public.Location)
	assert.Equal(t, 2, public.Rating.Count)
	assert.InDelta(t, 4.5, public.Rating.Average, 0.001)

	_, err = s.Public(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestTelegramAuthRoute(t *testing.T) {
	s, _ := newTestService(t)
	app := fiber.New()
	s.SetupRoutes(app)

	resp := postJSON(t, app, "/api/auth/telegram", map[string]string{"init_data": signInitData(t, "test-token", 5004, "carol")})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Token string          `json:"token"`
		User  *models.Profile `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	assert.Equal(t, "carol", body.User.Username)

	req := httptest.NewRequest(fiber.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestTelegramAuthRateLimited(t *testing.T) {
	s, _ := newTestService(t)
	app := fiber.New()
	s.SetupRoutes(app)

	statuses := map[int]int{}
	for i := 0; i < loginRateLimit+5; i++ {
		resp := postJSON(t, app, "/api/auth/telegram", map[string]string{})
		statuses[resp.StatusCode]++
	}
	assert.Equal(t, loginRateLimit, statuses[fiber.StatusBadRequest])
	assert.Equal(t, 5, statuses[fiber.StatusTooManyRequests])
}
