package escrow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/testutil"
)

type fixture struct {
	db       *db.DB
	cfg      *config.Config
	svc      *EscrowService
	payer    models.Actor
	receiver models.Actor
	admin    models.Actor
	trade    *models.TradeProposal
}

func newFixture(t *testing.T, tradeStatus models.TradeStatus) *fixture {
	t.Helper()

	database := testutil.NewDB(t)
	cfg := config.NewTestConfig()
	payer := testutil.SeedUser(t, database, "payer")
	receiver := testutil.SeedUser(t, database, "receiver")
	admin := testutil.SeedProfile(t, database, "moderator", models.RoleAdmin)
	product := testutil.SeedProduct(t, database, receiver.ID, "Ноутбук")

	return &fixture{
		db:       database,
		cfg:      cfg,
		svc:      NewEscrowService(cfg, database, &testutil.Waker{}),
		payer:    models.Actor{ID: payer.ID, Role: models.RoleUser},
		receiver: models.Actor{ID: receiver.ID, Role: models.RoleUser},
		admin:    models.Actor{ID: admin.ID, Role: models.RoleAdmin},
		trade:    testutil.SeedTrade(t, database, payer.ID, product, tradeStatus),
	}
}

func (f *fixture) create(t *testing.T) *models.EscrowTransaction {
	t.Helper()
	e, err := f.svc.Create(context.Background(), f.payer.ID, CreateInput{
		ReceiverID:      f.receiver.ID,
		Amount:          decimal.RequireFromString("1500.50"),
		TradeProposalID: &f.trade.ID,
	})
	require.NoError(t, err)
	return e
}

func TestCreateEscrow(t *testing.T) {
	f := newFixture(t, models.TradeStatusAccepted)

	e := f.create(t)
	assert.Equal(t, models.EscrowStatusPending, e.Status)
	assert.Equal(t, "RUB", e.Currency)
	assert.True(t, e.Amount.Equal(decimal.RequireFromString("1500.50")))

	stored, err := db.GetEscrow(context.Background(), f.db, e.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(e.Amount))

	created := testutil.EventsOfType(testutil.OutboxEvents(t, f.db), models.NotificationEscrowCreated)
	require.Len(t, created, 1)
	assert.Equal(t, f.receiver.ID, created[0].RecipientID)
}

func TestCreateEscrowValidation(t *testing.T) {
	f := newFixture(t, models.TradeStatusAccepted)
	stranger := testutil.SeedUser(t, f.db, "stranger")
	ctx := context.Background()

	tests := []struct {
		name    string
		payer   uuid.UUID
		input   CreateInput
		wantErr error
	}{
		{
			name:    "zero amount",
			payer:   f.payer.ID,
			input:   CreateInput{ReceiverID: f.receiver.ID, Amount: decimal.Zero},
			wantErr: models.ErrValidation,
		},
		{
			name:    "pay yourself",
			payer:   f.payer.ID,
			input:   CreateInput{ReceiverID: f.payer.ID, Amount: decimal.NewFromInt(10)},
			wantErr: models.ErrValidation,
		},
		{
			name:    "bad currency",
			payer:   f.payer.ID,
			input:   CreateInput{ReceiverID: f.receiver.ID, Amount: decimal.NewFromInt(10), Currency: "RUBLES"},
			wantErr: models.ErrValidation,
		},
		{
			name:    "unknown receiver",
			payer:   f.payer.ID,
			input:   CreateInput{ReceiverID: uuid.New(), Amount: decimal.NewFromInt(10)},
			wantErr: models.ErrNotFound,
		},
		{
			name:    "payer outside the trade",
			payer:   stranger.ID,
			input:   CreateInput{ReceiverID: f.receiver.ID, Amount: decimal.NewFromInt(10), TradeProposalID: &f.trade.ID},
			wantErr: models.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.payer, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEscrowRequiresAcceptedTrade(t *testing.T) {
	f := newFixture(t, models.TradeStatusPending)

	_, err := f.svc.Create(context.Background(), f.payer.ID, CreateInput{
		ReceiverID:      f.receiver.ID,
		Amount:          decimal.NewFromInt(100),
		TradeProposalID: &f.trade.ID,
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	f.cfg.Escrow.RequireAcceptedTrade = false
	e, err := f.svc.Create(context.Background(), f.payer.ID, CreateInput{
		ReceiverID:      f.receiver.ID,
		Amount:          decimal.NewFromInt(100),
		TradeProposalID: &f.trade.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusPending, e.Status)
}

func TestEscrowRequireTradePolicy(t *testing.T) {
	f := newFixture(t, models.TradeStatusAccepted)
	f.cfg.Escrow.RequireTrade = true

	_, err := f.svc.Create(context.Background(), f.payer.ID, CreateInput{
		ReceiverID: f.receiver.ID,
		Amount:     decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestEscrowFundAndRelease(t *testing.T) {
	f := newFixture(t, models.TradeStatusAccepted)
	ctx := context.Background()
	e := f.create(t)

	_, err := f.svc.Fund(ctx, f.receiver, e.ID, "pay-1")
	require.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.Release(ctx, f.payer, e.ID)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.Fund(ctx, f.payer, e.ID, "  ")
	require.ErrorIs(t, err, models.ErrValidation, "без номера платежа пополнение не принимается")

	funded, err := f.svc.Fund(ctx, f.payer, e.ID, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusFunded, funded.Status)
	assert.Equal(t, "pay-1", funded.PaymentReference)
	require.NotNil(t, funded.FundedAt)

	_, err = f.svc.Release(ctx, f.receiver, e.ID)
	require.ErrorIs(t, err, models.ErrForbidden)

	released, err := f.svc.Release(ctx, f.payer, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, released.Status)
	assert.Equal(t, int64(3), released.Version)

	_, err = f.svc.Refund(ctx, f.receiver, e.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	events := testutil.OutboxEvents(t, f.db)
	assert.Len(t, testutil.EventsOfType(events, models.NotificationEscrowFunded), 1)
	assert.Len(t, testutil.EventsOfType(events, models.NotificationEscrowReleased), 1)
}

func TestEscrowRefundByReceiver(t *testing.T) {
	f := newFixture(t, models.TradeStatusAccepted)
	ctx := context.Background()
	e := f.create(t)

	_, err := f.svc.Fund(ctx, f.payer, e.ID, "pay-1")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, f.payer, e.ID)
	require.ErrorIs(t, err, models.ErrForbidden)

	refunded, err := f.svc.Refund(ctx, f.receiver, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)

	refunds := testutil.EventsOfType(testutil.OutboxEvents(t, f.db), models.NotificationEscrowRefunded)
	require.Len(t, refunds, 1)
	assert.Equal(t, f.payer.ID, refunds[0].RecipientID)
}

func TestEscrowDisputeResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("dispute needs a reason", func(t *testing.T) {
		f := newFixture(t, models.TradeStatusAccepted)
		e := f.create(t)
		_, err := f.svc.Fund(ctx, f.payer, e.ID, "pay-1")
		require.NoError(t, err)

		_, err = f.svc.Dispute(ctx, f.payer, e.ID, "  ")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("admin releases disputed escrow", func(t *testing.T) {
		f := newFixture(t, models.TradeStatusAccepted)
		e := f.create(t)
		_, err := f.svc.Fund(ctx, f.payer, e.ID, "pay-1")
		require.NoError(t, err)

		disputed, err := f.svc.Dispute(ctx, f.payer, e.ID, "Товар не пришел")
		require.NoError(t, err)
		assert.Equal(t, models.EscrowStatusDisputed, disputed.Status)
		assert.Equal(t, "Товар не пришел", disputed.DisputeReason)

		disputes := testutil.EventsOfType(testutil.OutboxEvents(t, f.db), models.NotificationEscrowDisputed)
		require.Len(t, disputes, 1)
		assert.Equal(t, f.receiver.ID, disputes[0].RecipientID)

		_, err = f.svc.Resolve(ctx, f.payer, e.ID, "release")
		require.ErrorIs(t, err, models.ErrForbidden)

		resolved, err := f.svc.Resolve(ctx, f.admin, e.ID, "release")
		require.NoError(t, err)
		assert.Equal(t, models.EscrowStatusReleased, resolved.Status)
		assert.Len(t, testutil.EventsOfType(testutil.OutboxEvents(t, f.db), models.NotificationEscrowReleased), 2)
	})

	t.Run("admin refund of disputed escrow resolves it", func(t *testing.T) {
		f := newFixture(t, models.TradeStatusAccepted)
		e := f.create(t)
		_, err := f.svc.Fund(ctx, f.payer, e.ID, "pay-1")
		require.NoError(t, err)
		_, err = f.svc.Dispute(ctx, f.receiver, e.ID, "Покупатель пропал")
		require.NoError(t, err)

		refunded, err := f.svc.Refund(ctx, f.admin, e.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EscrowStatusRefunded, refunded.Status)
		assert.Len(t, testutil.EventsOfType(testutil.OutboxEvents(t, f.db), models.NotificationEscrowRefunded), 2)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		f := newFixture(t, models.TradeStatusAccepted)
		_, err := f.svc.Resolve(ctx, f.admin, uuid.New(), "split")
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestEscrowVisibility(t *testing.T) {
	f := newFixture(t, models.TradeStatusAccepted)
	ctx := context.Background()
	e := f.create(t)
	stranger := testutil.SeedUser(t, f.db, "stranger")

	_, err := f.svc.Get(ctx, models.Actor{ID: stranger.ID, Role: models.RoleUser}, e.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	got, err := f.svc.Get(ctx, f.admin, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	list, err := f.svc.List(ctx, f.receiver.ID, "", 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)
}
