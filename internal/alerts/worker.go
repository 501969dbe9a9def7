package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// MessageSender отправляет текст в чат Telegram
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Worker обрабатывает очередь оповещений
type Worker struct {
	server *asynq.Server
	sender MessageSender
}

// NewWorker создает обработчик очереди оповещений
func NewWorker(redisAddr string, sender MessageSender) *Worker {
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueAlerts: 10,
		},
	})
	return &Worker{server: server, sender: sender}
}

// Start запускает обработку задач в фоне
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTelegramNotification, w.HandleTelegramNotification)
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("starting alerts worker: %w", err)
	}
	log.Infof("Обработчик оповещений запущен")
	return nil
}

// Shutdown останавливает обработку
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// HandleTelegramNotification отправляет уведомление в Telegram
func (w *Worker) HandleTelegramNotification(ctx context.Context, t *asynq.Task) error {
	var p TelegramNotificationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// Повтор не поможет с битой нагрузкой
		return fmt.Errorf("decoding payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.sender.SendMessage(ctx, p.ChatID, p.Text); err != nil {
		log.Errorf("[notify][ERROR] Telegram send failed: notification=%s chat=%d: %v", p.NotificationID, p.ChatID, err)
		return err
	}
	log.Infof("[notify] Telegram sent -> notification=%s chat=%d", p.NotificationID, p.ChatID)
	return nil
}
