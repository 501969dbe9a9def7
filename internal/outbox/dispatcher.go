package outbox

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	logging "github.com/ipfs/go-log/v2"

	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/db"
	"github.com/rajivgeraev/barter-api/internal/models"
)

var log = logging.Logger("barter-outbox")

// Sink доставляет одно событие outbox получателю
type Sink interface {
	Deliver(ctx context.Context, ev models.OutboxEvent) error
}

// Dispatcher вычитывает outbox и доставляет события с повторными попытками
type Dispatcher struct {
	db   *db.DB
	sink Sink
	cfg  config.OutboxConfig
	wake chan struct{}
	now  func() time.Time
}

// NewDispatcher создает диспетчер outbox
func NewDispatcher(database *db.DB, sink Sink, cfg config.OutboxConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	return &Dispatcher{
		db:   database,
		sink: sink,
		cfg:  cfg,
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// SetClock подменяет источник времени
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Wake просит диспетчер проверить outbox, не дожидаясь таймера
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run обрабатывает outbox до отмены контекста
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	log.Infof("Диспетчер outbox запущен (интервал %s)", d.cfg.PollInterval)
	for {
		for {
			n, err := d.DrainOnce(ctx)
			if err != nil {
				log.Errorf("Ошибка обработки outbox: %v", err)
				break
			}
			if n < d.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			log.Infof("Диспетчер outbox остановлен")
			return ctx.Err()
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// DrainOnce обрабатывает одну пачку готовых событий и возвращает
// число обработанных (доставленных или отложенных) событий
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	now := d.now().UTC()
	events, err := db.ListDueOutboxEvents(ctx, d.db, now, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, ev := range events {
		claimed, err := db.ClaimOutboxEvent(ctx, d.db, ev.ID, now, now.Add(d.cfg.Lease))
		if err != nil {
			return processed, err
		}
		if !claimed {
			continue
		}
		if err := d.deliver(ctx, ev); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.OutboxEvent) error {
	attempts := ev.Attempts + 1
	deliverErr := d.sink.Deliver(ctx, ev)
	now := d.now().UTC()

	if deliverErr == nil {
		return db.MarkOutboxDelivered(ctx, d.db, ev.ID, attempts, now)
	}

	if attempts >= d.cfg.MaxAttempts {
		log.Errorf("Событие %s (%s) не доставлено после %d попыток: %v", ev.ID, ev.EventType, attempts, deliverErr)
		return db.MarkOutboxDead(ctx, d.db, ev.ID, attempts, deliverErr.Error())
	}

	next := now.Add(d.Backoff(attempts))
	log.Warnf("Доставка события %s (%s) не удалась, попытка %d, повтор в %s: %v",
		ev.ID, ev.EventType, attempts, next.Format(time.RFC3339), deliverErr)
	return db.MarkOutboxRetry(ctx, d.db, ev.ID, attempts, next, deliverErr.Error())
}

// Backoff возвращает задержку перед следующей попыткой: экспоненциально
// от BaseBackoff, но не больше MaxBackoff
func (d *Dispatcher) Backoff(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(d.cfg.BaseBackoff),
		backoff.WithMaxInterval(d.cfg.MaxBackoff),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxElapsedTime(0),
	)

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
