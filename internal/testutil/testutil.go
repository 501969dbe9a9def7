// Package testutil собирает окружение для тестов сервисов: временную базу
// SQLite со схемой и фабрики профилей и товаров.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
)

// NewDB открывает пустую базу во временном каталоге теста и применяет миграции
func NewDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "barter.db"))
	require.NoError(t, err)
	t.Cleanup(database.CloseDB)

	require.NoError(t, database.Migrate(context.Background()))
	return database
}

var telegramSeq struct {
	sync.Mutex
	next int64
}

func nextTelegramID() int64 {
	telegramSeq.Lock()
	defer telegramSeq.Unlock()
	telegramSeq.next++
	return 100000 + telegramSeq.next
}

// SeedProfile создает пользователя с указанной ролью
func SeedProfile(t *testing.T, database *db.DB, name string, role models.Role) *models.Profile {
	t.Helper()

	p, err := db.UpsertTelegramProfile(context.Background(), database, models.Profile{
		TelegramID: nextTelegramID(),
		Username:   name,
		FirstName:  name,
		Role:       role,
	}, time.Now())
	require.NoError(t, err)
	return p
}

// SeedUser создает обычного пользователя
func SeedUser(t *testing.T, database *db.DB, name string) *models.Profile {
	t.Helper()
	return SeedProfile(t, database, name, models.RoleUser)
}

// SeedProduct создает активный товар, доступный для обмена
func SeedProduct(t *testing.T, database *db.DB, ownerID uuid.UUID, title string) *models.Product {
	t.Helper()

	now := time.Now().UTC()
	p := &models.Product{
		ID:          uuid.New(),
		UserID:      ownerID,
		Title:       title,
		Description: fmt.Sprintf("%s для теста", title),
		Categories:  models.StringList{"electronics"},
		Condition:   "good",
		AllowTrade:  true,
		Status:      models.ProductStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Images: []models.ProductImage{
			{URL: "https://res.cloudinary.com/demo/image/upload/sample.jpg", IsMain: true},
		},
	}
	require.NoError(t, db.InsertProduct(context.Background(), database, p))
	return p
}

// SeedTrade создает предложение обмена на товар получателя в заданном статусе
func SeedTrade(t *testing.T, database *db.DB, proposerID uuid.UUID, product *models.Product, status models.TradeStatus) *models.TradeProposal {
	t.Helper()

	now := time.Now().UTC()
	trade := &models.TradeProposal{
		ID:                uuid.New(),
		ProposerID:        proposerID,
		ReceiverID:        product.UserID,
		ReceiverProductID: product.ID,
		CashFrom:          models.CashFromNone,
		Status:            status,
		ExpiresAt:         now.Add(7 * 24 * time.Hour),
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, db.InsertTradeProposal(context.Background(), database, trade))
	return trade
}

// OutboxEvents возвращает все события outbox, ожидающие доставки
func OutboxEvents(t *testing.T, database *db.DB) []models.OutboxEvent {
	t.Helper()

	events, err := db.ListDueOutboxEvents(context.Background(), database, time.Now().Add(365*24*time.Hour), 1000)
	require.NoError(t, err)
	return events
}

// EventsOfType отбирает события указанного типа
func EventsOfType(events []models.OutboxEvent, typ models.NotificationType) []models.OutboxEvent {
	var out []models.OutboxEvent
	for _, ev := range events {
		if ev.EventType == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Waker считает вызовы Wake
type Waker struct {
	mu    sync.Mutex
	calls int
}

// Wake реализует outbox.Waker
func (w *Waker) Wake() {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
}

// Calls возвращает число вызовов Wake
func (w *Waker) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}
