package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/testutil"
)

func TestUpdateTradeStatusStaleVersion(t *testing.T) {
	database := testutil.NewDB(t)
	ctx := context.Background()
	alice := testutil.SeedUser(t, database, "alice")
	bob := testutil.SeedUser(t, database, "bob")
	trade := testutil.SeedTrade(t, database, alice.ID, testutil.SeedProduct(t, database, bob.ID, "Велосипед"), models.TradeStatusPending)

	accept := db.TradeStatusUpdate{
		ID:      trade.ID,
		From:    models.TradeStatusPending,
		To:      models.TradeStatusAccepted,
		Version: trade.Version,
		Now:     time.Now(),
	}
	require.NoError(t, db.UpdateTradeStatus(ctx, database, accept))

	// Повтор с прочитанной ранее версией не проходит
	err := db.UpdateTradeStatus(ctx, database, accept)
	assert.ErrorIs(t, err, models.ErrConcurrentUpdate)

	// Верный статус, но устаревшая версия
	err = db.UpdateTradeStatus(ctx, database, db.TradeStatusUpdate{
		ID:      trade.ID,
		From:    models.TradeStatusAccepted,
		To:      models.TradeStatusCompleted,
		Version: trade.Version,
		Now:     time.Now(),
	})
	assert.ErrorIs(t, err, models.ErrConcurrentUpdate)

	stored, err := db.GetTradeProposal(ctx, database, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusAccepted, stored.Status)
	assert.Equal(t, trade.Version+1, stored.Version)
}

func TestUpdateEscrowStatusStaleVersion(t *testing.T) {
	database := testutil.NewDB(t)
	ctx := context.Background()
	payer := testutil.SeedUser(t, database, "payer")
	receiver := testutil.SeedUser(t, database, "receiver")

	now := time.Now().UTC()
	escrow := &models.EscrowTransaction{
		ID:         uuid.New(),
		PayerID:    payer.ID,
		ReceiverID: receiver.ID,
		Amount:     decimal.RequireFromString("1500.00"),
		Currency:   "RUB",
		Status:     models.EscrowStatusPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, db.InsertEscrow(ctx, database, escrow))

	ref := "pay-1"
	fund := db.EscrowStatusUpdate{
		ID:               escrow.ID,
		From:             models.EscrowStatusPending,
		To:               models.EscrowStatusFunded,
		Version:          escrow.Version,
		PaymentReference: &ref,
		FundedAt:         &now,
		Now:              now,
	}
	require.NoError(t, db.UpdateEscrowStatus(ctx, database, fund))
	assert.ErrorIs(t, db.UpdateEscrowStatus(ctx, database, fund), models.ErrConcurrentUpdate)

	stored, err := db.GetEscrow(ctx, database, escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusFunded, stored.Status)
	assert.Equal(t, "pay-1", stored.PaymentReference)
	assert.Equal(t, int64(2), stored.Version)
}

func TestPendingTradeUniquePerPair(t *testing.T) {
	database := testutil.NewDB(t)
	ctx := context.Background()
	alice := testutil.SeedUser(t, database, "alice")
	bob := testutil.SeedUser(t, database, "bob")
	wanted := testutil.SeedProduct(t, database, bob.ID, "Гитара")
	offered := testutil.SeedProduct(t, database, alice.ID, "Самокат")

	newTrade := func(proposerProduct *uuid.UUID) *models.TradeProposal {
		now := time.Now().UTC()
		return &models.TradeProposal{
			ID:                uuid.New(),
			ProposerID:        alice.ID,
			ReceiverID:        bob.ID,
			ProposerProductID: proposerProduct,
			ReceiverProductID: wanted.ID,
			CashFrom:          models.CashFromNone,
			Status:            models.TradeStatusPending,
			ExpiresAt:         now.Add(time.Hour),
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}

	// Вставка в обход предварительной проверки, как при гонке двух запросов
	first := newTrade(nil)
	require.NoError(t, db.InsertTradeProposal(ctx, database, first))
	assert.ErrorIs(t, db.InsertTradeProposal(ctx, database, newTrade(nil)), models.ErrConflict)

	withProduct := newTrade(&offered.ID)
	require.NoError(t, db.InsertTradeProposal(ctx, database, withProduct), "другая пара товаров")
	assert.ErrorIs(t, db.InsertTradeProposal(ctx, database, newTrade(&offered.ID)), models.ErrConflict)

	// После выхода из pending пара снова свободна
	require.NoError(t, db.UpdateTradeStatus(ctx, database, db.TradeStatusUpdate{
		ID:      first.ID,
		From:    models.TradeStatusPending,
		To:      models.TradeStatusCancelled,
		Version: first.Version,
		Now:     time.Now(),
	}))
	assert.NoError(t, db.InsertTradeProposal(ctx, database, newTrade(nil)))
}

func TestActiveKYCUniquePerUser(t *testing.T) {
	database := testutil.NewDB(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, database, "alice")
	admin := testutil.SeedProfile(t, database, "admin", models.RoleAdmin)

	newVerification := func() *models.KYCVerification {
		now := time.Now().UTC()
		return &models.KYCVerification{
			ID:             uuid.New(),
			UserID:         user.ID,
			DocumentType:   "passport",
			DocumentNumber: "4510 123456",
			FrontImageURL:  "https://res.cloudinary.com/demo/front.jpg",
			Status:         models.KYCStatusPending,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	first := newVerification()
	require.NoError(t, db.InsertKYCVerification(ctx, database, first))
	assert.ErrorIs(t, db.InsertKYCVerification(ctx, database, newVerification()), models.ErrConflict)

	require.NoError(t, db.UpdateKYCStatus(ctx, database, first, models.KYCStatusRejected, admin.ID, "нечитаемое фото", time.Now()))
	assert.NoError(t, db.InsertKYCVerification(ctx, database, newVerification()))
}
