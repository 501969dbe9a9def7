package outbox

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/rajivgeraev/barter-api/internal/db"
)

// Listen подписывается на LISTEN/NOTIFY PostgreSQL и будит диспетчер
// при каждой записи в outbox. Блокируется до отмены контекста.
func Listen(ctx context.Context, dsn string, w Waker) error {
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warnf("Ошибка соединения LISTEN: %v", err)
		}
		if ev == pq.ListenerEventReconnected {
			// Уведомления могли потеряться во время разрыва
			w.Wake()
		}
	})
	defer listener.Close()

	if err := listener.Listen(db.OutboxChannel); err != nil {
		return err
	}
	log.Infof("Подписка на канал %s установлена", db.OutboxChannel)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-listener.Notify:
			w.Wake()
		case <-time.After(90 * time.Second):
			if err := listener.Ping(); err != nil {
				log.Warnf("Ping LISTEN-соединения не удался: %v", err)
			}
		}
	}
}
