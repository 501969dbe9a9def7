package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/rajivgeraev/barter-api/internal/models"
)

var log = logging.Logger("barter-realtime")

// ChatHooks дает realtime-слою доступ к диалогам
type ChatHooks interface {
	// Counterpart возвращает второго участника диалога или ошибку,
	// если пользователь в нем не участвует
	Counterpart(ctx context.Context, conversationID, userID string) (string, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error)
}

// Manager представляет центральный менеджер для всех WebSocket соединений
type Manager struct {
	clients      map[uuid.UUID]*Client
	clientsMutex sync.RWMutex
	userClients  map[string]map[uuid.UUID]bool // userID -> map[clientID]bool
	userMutex    sync.RWMutex
	hooks        ChatHooks
	ctx          context.Context
	cancel       context.CancelFunc
}

// EventType определяет тип события WebSocket
type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventNewNotification EventType = "new_notification"
	EventMessageRead     EventType = "message_read"
	EventConnected       EventType = "connected"
	EventTyping          EventType = "typing"
	EventStopTyping      EventType = "stop_typing"
	EventUnreadCount     EventType = "unread_count"
)

// Event представляет структуру сообщения для WebSocket.
// ID - первичный ключ строки (сообщения или уведомления), по нему
// отбрасываются повторные доставки.
type Event struct {
	Type      EventType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	ChatID    string          `json:"chat_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewManager создает новый экземпляр Manager
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[string]map[uuid.UUID]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetChatHooks подключает обработку событий чата от клиентов
func (m *Manager) SetChatHooks(h ChatHooks) { m.hooks = h }

// AddClient регистрирует нового клиента
func (m *Manager) AddClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.ID] = client
	m.clientsMutex.Unlock()

	// Связываем клиент с пользователем
	m.userMutex.Lock()
	if _, exists := m.userClients[client.UserID]; !exists {
		m.userClients[client.UserID] = make(map[uuid.UUID]bool)
	}
	m.userClients[client.UserID][client.ID] = true
	m.userMutex.Unlock()

	log.Infof("WebSocket client %s connected for user %s", client.ID, client.UserID)
}

// RemoveClient удаляет клиента
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.clientsMutex.Lock()
	client, exists := m.clients[clientID]
	if exists {
		delete(m.clients, clientID)
	}
	m.clientsMutex.Unlock()

	if !exists {
		return
	}

	userID := client.UserID

	// Удаляем клиент из связи с пользователем
	m.userMutex.Lock()
	if clients, ok := m.userClients[userID]; ok {
		delete(clients, clientID)
		// Если это был последний клиент пользователя, удаляем запись пользователя
		if len(clients) == 0 {
			delete(m.userClients, userID)
		}
	}
	m.userMutex.Unlock()

	client.closeSend()
	log.Infof("WebSocket client %s disconnected for user %s", clientID, userID)
}

// IsOnline сообщает, есть ли у пользователя открытые соединения
func (m *Manager) IsOnline(userID string) bool {
	m.userMutex.RLock()
	defer m.userMutex.RUnlock()
	return len(m.userClients[userID]) > 0
}

// SendToUser отправляет событие всем соединениям конкретного пользователя.
// Соединение, уже получившее событие с тем же ключом, повтор не получает.
func (m *Manager) SendToUser(userID string, event Event) {
	if userID == "" {
		return
	}

	m.userMutex.RLock()
	clientIDs := make([]uuid.UUID, 0, len(m.userClients[userID]))
	for id := range m.userClients[userID] {
		clientIDs = append(clientIDs, id)
	}
	m.userMutex.RUnlock()

	if len(clientIDs) == 0 {
		// Пользователь не онлайн, но данные все равно сохранены в БД
		return
	}

	// Устанавливаем время события, если не установлено
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Error marshaling event: %v", err)
		return
	}

	key := dedupKey(event)
	for _, clientID := range clientIDs {
		m.clientsMutex.RLock()
		client, exists := m.clients[clientID]
		m.clientsMutex.RUnlock()

		if !exists {
			continue
		}
		if key != "" && client.seenBefore(key) {
			continue
		}

		if !client.enqueue(eventJSON) {
			// Канал заполнен, клиент слишком медленный - закрываем соединение
			log.Warnf("Send channel full for client %s, closing connection", client.ID)
			client.close()
			m.RemoveClient(client.ID)
		}
	}
}

// PublishNotification отправляет уведомление в realtime-канал пользователя
func (m *Manager) PublishNotification(userID string, n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		log.Errorf("Error marshaling notification: %v", err)
		return
	}
	m.SendToUser(userID, Event{
		Type:      EventNewNotification,
		ID:        n.ID.String(),
		UserID:    userID,
		Timestamp: n.CreatedAt,
		Payload:   payload,
	})
}

// PublishMessage отправляет новое сообщение получателю
func (m *Manager) PublishMessage(userID string, msg models.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error marshaling message: %v", err)
		return
	}
	m.SendToUser(userID, Event{
		Type:      EventNewMessage,
		ID:        msg.ID.String(),
		ChatID:    msg.ConversationID.String(),
		MessageID: msg.ID.String(),
		UserID:    msg.SenderID.String(),
		Timestamp: msg.CreatedAt,
		Payload:   payload,
	})
}

// BroadcastUnreadCounts отправляет обновленное количество непрочитанных сообщений пользователю
func (m *Manager) BroadcastUnreadCounts(userID string, unreadCount int) {
	payload, _ := json.Marshal(map[string]int{"count": unreadCount})

	m.SendToUser(userID, Event{
		Type:      EventUnreadCount,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// Shutdown корректно завершает работу менеджера WebSocket
func (m *Manager) Shutdown() {
	m.cancel()

	m.clientsMutex.Lock()
	for _, client := range m.clients {
		client.close()
	}
	m.clients = make(map[uuid.UUID]*Client)
	m.clientsMutex.Unlock()

	m.userMutex.Lock()
	m.userClients = make(map[string]map[uuid.UUID]bool)
	m.userMutex.Unlock()
}

func dedupKey(e Event) string {
	if e.ID == "" {
		return ""
	}
	return string(e.Type) + ":" + e.ID
}
