package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	logging "github.com/ipfs/go-log/v2"

	"github.com/rajivgeraev/barter-api/internal/models"
)

var log = logging.Logger("barter-alerts")

// Queue ставит задачи оповещений в Redis через asynq
type Queue struct {
	client *asynq.Client
}

// NewQueue подключается к Redis по адресу redisAddr
func NewQueue(redisAddr string) *Queue {
	return &Queue{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// Close освобождает соединение с Redis
func (q *Queue) Close() error {
	return q.client.Close()
}

// EnqueueTelegramAlert ставит отправку уведомления в Telegram.
// ID уведомления служит ID задачи, повторная постановка игнорируется.
func (q *Queue) EnqueueTelegramAlert(ctx context.Context, chatID int64, n models.Notification) error {
	payload := TelegramNotificationPayload{
		NotificationID: n.ID.String(),
		ChatID:         chatID,
		Text:           FormatNotification(n),
		QueuedAt:       time.Now().UTC(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTelegramNotification, b)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueAlerts),
		asynq.TaskID(n.ID.String()),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
