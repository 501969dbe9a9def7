package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// Максимальное время ожидания для pong от клиента
	pongWait = 60 * time.Second

	// Отправлять ping-сообщения клиенту с этим интервалом
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер сообщения от клиента
	maxMessageSize = 64 * 1024

	// Размер буфера для отправляемых сообщений
	writeBufferSize = 256

	// Сколько последних ключей событий помнит соединение
	dedupWindow = 1024

	hookTimeout = 5 * time.Second
)

// Client представляет собой отдельное WebSocket соединение
type Client struct {
	ID        uuid.UUID
	UserID    string
	conn      *websocket.Conn
	send      chan []byte // Буферизованный канал исходящих сообщений
	manager   *Manager
	closeChan chan struct{}
	closeOnce sync.Once
	seen      *lru.Cache[string, struct{}]
}

// NewClient создает новый экземпляр Client
func NewClient(userID string, conn *websocket.Conn, manager *Manager) *Client {
	seen, _ := lru.New[string, struct{}](dedupWindow)
	return &Client{
		ID:        uuid.New(),
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, writeBufferSize),
		manager:   manager,
		closeChan: make(chan struct{}),
		seen:      seen,
	}
}

// Start запускает клиентские горутины для чтения и записи
func (c *Client) Start() {
	// Добавляем клиент к менеджеру
	c.manager.AddClient(c)

	// Запускаем горутины для чтения и записи
	go c.readPump()
	go c.writePump()
}

// seenBefore запоминает ключ события и сообщает, встречался ли он раньше
func (c *Client) seenBefore(key string) bool {
	found, _ := c.seen.ContainsOrAdd(key, struct{}{})
	return found
}

// enqueue ставит сообщение в очередь отправки. Возвращает false, если очередь заполнена.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.closeChan:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.closeChan) })
}

func (c *Client) close() {
	c.closeSend()
	if c.conn != nil {
		c.conn.Close()
	}
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer func() {
		c.manager.RemoveClient(c.ID)
		c.conn.Close()
	}()

	// Настраиваем соединение
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Бесконечный цикл чтения сообщений
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("Unexpected close error: %v", err)
			}
			break
		}

		// Обрабатываем входящее сообщение
		c.handleIncomingMessage(message)
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warnf("Error writing message: %v", err)
				return
			}
		case <-ticker.C:
			// Отправляем ping для поддержания соединения
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleIncomingMessage обрабатывает входящие сообщения от клиента
func (c *Client) handleIncomingMessage(message []byte) {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		log.Warnf("Error unmarshaling event: %v", err)
		return
	}

	// Проверяем, что userID в сообщении соответствует userID клиента
	// для предотвращения подделки отправителя
	if event.UserID != "" && event.UserID != c.UserID {
		log.Warnf("UserID mismatch in message: %s vs %s", event.UserID, c.UserID)
		return
	}

	// Устанавливаем корректный userID и время
	event.UserID = c.UserID
	event.ID = ""
	event.Timestamp = time.Now().UTC()

	hooks := c.manager.hooks
	if hooks == nil || event.ChatID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(c.manager.ctx, hookTimeout)
	defer cancel()

	switch event.Type {
	case EventTyping, EventStopTyping:
		counterpart, err := hooks.Counterpart(ctx, event.ChatID, c.UserID)
		if err != nil {
			log.Debugf("Typing event rejected for chat %s: %v", event.ChatID, err)
			return
		}
		event.Payload = nil
		c.manager.SendToUser(counterpart, event)
	case EventMessageRead:
		counterpart, err := hooks.Counterpart(ctx, event.ChatID, c.UserID)
		if err != nil {
			log.Debugf("Read event rejected for chat %s: %v", event.ChatID, err)
			return
		}
		if _, err := hooks.MarkConversationRead(ctx, event.ChatID, c.UserID); err != nil {
			log.Errorf("Error marking chat %s as read: %v", event.ChatID, err)
			return
		}
		event.Payload = nil
		c.manager.SendToUser(counterpart, event)
	default:
		log.Debugf("Unhandled event type: %s", event.Type)
	}
}
