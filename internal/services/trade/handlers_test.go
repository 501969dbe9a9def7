package trade

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

func (f *fixture) app() *fiber.App {
	app := fiber.New()
	f.svc.SetupRoutes(app)
	return app
}

func bearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := utils.NewJWTService("test-secret").GenerateToken(userID, models.RoleUser)
	require.NoError(t, err)
	return "Bearer " + token
}

func call(t *testing.T, app *fiber.App, method, path, auth string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestTradeRoutes(t *testing.T) {
	f := newFixture(t)
	app := f.app()
	alice := bearer(t, f.proposer.ID)
	bob := bearer(t, f.receiver.ID)

	resp, _ := call(t, app, fiber.MethodPost, "/api/trades", "", map[string]interface{}{"receiver_product_id": f.wanted.ID})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body := call(t, app, fiber.MethodPost, "/api/trades", alice, map[string]interface{}{
		"receiver_product_id": f.wanted.ID,
		"proposer_product_id": f.offered.ID,
		"message":             "Меняемся?",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	tradeID, _ := body["trade_id"].(string)
	require.NotEmpty(t, tradeID)

	resp, body = call(t, app, fiber.MethodGet, "/api/trades?type=incoming", bob, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, _ = call(t, app, fiber.MethodPut, "/api/trades/"+tradeID+"/status", bob, map[string]string{"status": "maybe"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, app, fiber.MethodPut, "/api/trades/"+tradeID+"/status", alice, map[string]string{"status": "accepted"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "принять может только получатель")

	resp, body = call(t, app, fiber.MethodPut, "/api/trades/"+tradeID+"/status", bob, map[string]string{"status": "accepted", "message": "Давай"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "accepted", body["status"])
	assert.NotEmpty(t, body["chat_id"])

	resp, body = call(t, app, fiber.MethodPut, "/api/trades/"+tradeID+"/status", bob, map[string]string{"status": "rejected"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", body["code"])

	resp, body = call(t, app, fiber.MethodPost, "/api/trades/"+tradeID+"/complete", alice, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)

	resp, _ = call(t, app, fiber.MethodGet, "/api/trades/not-a-uuid", alice, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, app, fiber.MethodGet, "/api/trades/"+uuid.NewString(), alice, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
