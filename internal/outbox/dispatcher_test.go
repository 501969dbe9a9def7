package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/testutil"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakySink) Deliver(ctx context.Context, ev models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("sink unavailable")
	}
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (p *recordingPublisher) PublishNotification(userID string, n models.Notification) {
	p.mu.Lock()
	p.sent = append(p.sent, n)
	p.mu.Unlock()
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []int64
}

func (a *recordingAlerter) EnqueueTelegramAlert(ctx context.Context, chatID int64, n models.Notification) error {
	a.mu.Lock()
	a.alerts = append(a.alerts, chatID)
	a.mu.Unlock()
	return nil
}

var testOutboxConfig = config.OutboxConfig{
	BatchSize:   10,
	MaxAttempts: 3,
	BaseBackoff: time.Second,
	MaxBackoff:  4 * time.Second,
	Lease:       30 * time.Second,
}

func enqueueOne(t *testing.T, database *db.DB, recipient uuid.UUID, now time.Time) uuid.UUID {
	t.Helper()
	aggregate := uuid.New()
	err := database.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return Enqueue(context.Background(), tx, now, Notice{
			AggregateType: "trade_proposal",
			AggregateID:   aggregate,
			RecipientID:   recipient,
			Type:          models.NotificationTradeProposal,
			Title:         "Новое предложение обмена",
			Message:       "Вам предложили обмен",
		})
	})
	require.NoError(t, err)

	events := testutil.OutboxEvents(t, database)
	for _, ev := range events {
		if ev.AggregateID == aggregate {
			return ev.ID
		}
	}
	t.Fatalf("event for aggregate %s not found", aggregate)
	return uuid.Nil
}

func TestBackoff(t *testing.T) {
	d := NewDispatcher(nil, nil, testOutboxConfig)

	assert.Equal(t, time.Second, d.Backoff(1))
	assert.Equal(t, 2*time.Second, d.Backoff(2))
	assert.Equal(t, 4*time.Second, d.Backoff(3))
	assert.Equal(t, 4*time.Second, d.Backoff(10))

	// Базовая задержка больше потолка не растет
	slow := NewDispatcher(nil, nil, config.OutboxConfig{BaseBackoff: 3 * time.Second, MaxBackoff: 5 * time.Second})
	assert.Equal(t, 3*time.Second, slow.Backoff(1))
	assert.Equal(t, 5*time.Second, slow.Backoff(2))
	assert.Equal(t, 5*time.Second, slow.Backoff(3))
}

func TestDispatcherRetriesThenDelivers(t *testing.T) {
	database := testutil.NewDB(t)
	user := testutil.SeedUser(t, database, "alice")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id := enqueueOne(t, database, user.ID, now)

	sink := &flakySink{failures: 1}
	d := NewDispatcher(database, sink, testOutboxConfig)
	d.SetClock(func() time.Time { return now })
	ctx := context.Background()

	n, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev, err := db.GetOutboxEvent(ctx, database, id)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusPending, ev.Status)
	assert.Equal(t, 1, ev.Attempts)
	assert.Equal(t, "sink unavailable", ev.LastError)
	assert.True(t, ev.NextAttemptAt.Equal(now.Add(time.Second)), ev.NextAttemptAt)

	// До наступления времени повтора событие не берется
	n, err = d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(time.Second)
	n, err = d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev, err = db.GetOutboxEvent(ctx, database, id)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusDelivered, ev.Status)
	assert.Equal(t, 2, ev.Attempts)
	assert.NotNil(t, ev.DeliveredAt)
	assert.Equal(t, 2, sink.calls)
}

func TestDispatcherDeadLetter(t *testing.T) {
	database := testutil.NewDB(t)
	user := testutil.SeedUser(t, database, "alice")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id := enqueueOne(t, database, user.ID, now)

	sink := &flakySink{failures: 100}
	d := NewDispatcher(database, sink, testOutboxConfig)
	d.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < testOutboxConfig.MaxAttempts; i++ {
		_, err := d.DrainOnce(ctx)
		require.NoError(t, err)
		now = now.Add(time.Hour)
	}

	ev, err := db.GetOutboxEvent(ctx, database, id)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusDead, ev.Status)
	assert.Equal(t, testOutboxConfig.MaxAttempts, ev.Attempts)

	n, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, testOutboxConfig.MaxAttempts, sink.calls)

	counts, err := db.CountOutboxByStatus(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.OutboxStatusDead])
}

func TestNotificationSinkIsIdempotent(t *testing.T) {
	database := testutil.NewDB(t)
	user := testutil.SeedUser(t, database, "alice")
	now := time.Now().UTC()
	id := enqueueOne(t, database, user.ID, now)
	ctx := context.Background()

	publisher := &recordingPublisher{}
	alerter := &recordingAlerter{}
	sink := NewNotificationSink(database, publisher, alerter)

	ev, err := db.GetOutboxEvent(ctx, database, id)
	require.NoError(t, err)

	// Повторная доставка того же события не создает второе уведомление
	require.NoError(t, sink.Deliver(ctx, *ev))
	require.NoError(t, sink.Deliver(ctx, *ev))

	notifications, err := db.ListNotifications(ctx, database, user.ID, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, id, notifications[0].ID)
	assert.Equal(t, "Новое предложение обмена", notifications[0].Title)
	assert.Equal(t, "trade_proposal", notifications[0].ReferenceType)

	assert.Len(t, alerter.alerts, 1)
	assert.Equal(t, user.TelegramID, alerter.alerts[0])
	assert.Len(t, publisher.sent, 2)
}

func TestWakeDoesNotBlock(t *testing.T) {
	d := NewDispatcher(nil, nil, testOutboxConfig)
	for i := 0; i < 5; i++ {
		d.Wake()
	}
	assert.Len(t, d.wake, 1)
}
