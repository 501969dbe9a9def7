package shipping

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/testutil"
)

type fixture struct {
	svc      *ShippingService
	sender   *models.Profile
	receiver *models.Profile
	stranger *models.Profile
	trade    *models.TradeProposal
}

func newFixture(t *testing.T, status models.TradeStatus) (*fixture, func() []models.OutboxEvent) {
	t.Helper()
	database := testutil.NewDB(t)
	sender := testutil.SeedUser(t, database, "sender")
	receiver := testutil.SeedUser(t, database, "receiver")
	stranger := testutil.SeedUser(t, database, "stranger")
	product := testutil.SeedProduct(t, database, receiver.ID, "Фотоаппарат")

	svc := NewShippingService(config.NewTestConfig(), database, &testutil.Waker{})
	svc.SetClock(func() time.Time { return time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC) })

	f := &fixture{
		svc:      svc,
		sender:   sender,
		receiver: receiver,
		stranger: stranger,
		trade:    testutil.SeedTrade(t, database, sender.ID, product, status),
	}
	return f, func() []models.OutboxEvent { return testutil.OutboxEvents(t, database) }
}

func TestCreateShipment(t *testing.T) {
	f, _ := newFixture(t, models.TradeStatusAccepted)

	order, err := f.svc.Create(context.Background(), f.sender.ID, CreateInput{
		TradeProposalID: f.trade.ID,
		Carrier:         " CDEK ",
		TrackingNumber:  "1234567890",
		Address:         "Москва, ул. Ленина, 1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cdek", order.Carrier)
	assert.Equal(t, f.receiver.ID, order.ReceiverID)
	assert.Equal(t, models.ShippingStatusPending, order.Status)
	assert.Equal(t, "https://www.cdek.ru/ru/tracking?order_id=1234567890", order.TrackingURL)
}

func TestCreateShipmentRules(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown carrier", func(t *testing.T) {
		f, _ := newFixture(t, models.TradeStatusAccepted)
		_, err := f.svc.Create(ctx, f.sender.ID, CreateInput{TradeProposalID: f.trade.ID, Carrier: "pigeon", Address: "где-то"})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("address required", func(t *testing.T) {
		f, _ := newFixture(t, models.TradeStatusAccepted)
		_, err := f.svc.Create(ctx, f.sender.ID, CreateInput{TradeProposalID: f.trade.ID, Carrier: "dhl"})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("stranger", func(t *testing.T) {
		f, _ := newFixture(t, models.TradeStatusAccepted)
		_, err := f.svc.Create(ctx, f.stranger.ID, CreateInput{TradeProposalID: f.trade.ID, Carrier: "dhl", Address: "где-то"})
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("trade still pending", func(t *testing.T) {
		f, _ := newFixture(t, models.TradeStatusPending)
		_, err := f.svc.Create(ctx, f.sender.ID, CreateInput{TradeProposalID: f.trade.ID, Carrier: "dhl", Address: "где-то"})
		assert.ErrorIs(t, err, models.ErrConflict)
	})
}

func TestShipmentLifecycle(t *testing.T) {
	f, events := newFixture(t, models.TradeStatusAccepted)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, f.sender.ID, CreateInput{TradeProposalID: f.trade.ID, Carrier: "pochta", Address: "Казань"})
	require.NoError(t, err)
	assert.Empty(t, order.TrackingURL)

	_, err = f.svc.Advance(ctx, f.sender.ID, order.ID, models.ShippingActionShip, "")
	require.ErrorIs(t, err, models.ErrValidation, "без трек-номера отправить нельзя")

	_, err = f.svc.Advance(ctx, f.receiver.ID, order.ID, models.ShippingActionShip, "RA123")
	require.ErrorIs(t, err, models.ErrForbidden)

	shipped, err := f.svc.Advance(ctx, f.sender.ID, order.ID, models.ShippingActionShip, "RA123")
	require.NoError(t, err)
	assert.Equal(t, models.ShippingStatusShipped, shipped.Status)
	assert.Equal(t, "https://www.pochta.ru/tracking#RA123", shipped.TrackingURL)
	require.NotNil(t, shipped.ShippedAt)

	sent := testutil.EventsOfType(events(), models.NotificationShipmentSent)
	require.Len(t, sent, 1)
	assert.Equal(t, f.receiver.ID, sent[0].RecipientID)

	_, err = f.svc.Advance(ctx, f.sender.ID, order.ID, models.ShippingActionDeliver, "")
	require.ErrorIs(t, err, models.ErrForbidden, "доставку подтверждает получатель")

	_, err = f.svc.Advance(ctx, f.sender.ID, order.ID, models.ShippingActionCancel, "")
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	inTransit, err := f.svc.Advance(ctx, f.receiver.ID, order.ID, models.ShippingActionTransit, "")
	require.NoError(t, err)
	assert.Equal(t, models.ShippingStatusInTransit, inTransit.Status)

	delivered, err := f.svc.Advance(ctx, f.receiver.ID, order.ID, models.ShippingActionDeliver, "")
	require.NoError(t, err)
	assert.Equal(t, models.ShippingStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	done := testutil.EventsOfType(events(), models.NotificationShipmentDone)
	require.Len(t, done, 1)
	assert.Equal(t, f.sender.ID, done[0].RecipientID)

	stored, err := f.svc.Get(ctx, models.Actor{ID: f.receiver.ID, Role: models.RoleUser}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShippingStatusDelivered, stored.Status)
	assert.Equal(t, "RA123", stored.TrackingNumber)
}

func TestShipmentVisibility(t *testing.T) {
	f, _ := newFixture(t, models.TradeStatusAccepted)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, f.sender.ID, CreateInput{TradeProposalID: f.trade.ID, Carrier: "ups", Address: "Сочи"})
	require.NoError(t, err)

	stranger := models.Actor{ID: f.stranger.ID, Role: models.RoleUser}
	_, err = f.svc.Get(ctx, stranger, order.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.svc.ListForTrade(ctx, stranger, f.trade.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	admin := models.Actor{ID: uuid.New(), Role: models.RoleAdmin}
	list, err := f.svc.ListForTrade(ctx, admin, f.trade.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, order.ID, list[0].ID)
}
