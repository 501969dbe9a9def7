package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/models"
)

type fakeHooks struct {
	counterpart string
	marked      []string
}

func (h *fakeHooks) Counterpart(ctx context.Context, conversationID, userID string) (string, error) {
	if h.counterpart == "" {
		return "", errors.New("not a participant")
	}
	return h.counterpart, nil
}

func (h *fakeHooks) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	h.marked = append(h.marked, conversationID)
	return 1, nil
}

// attach регистрирует клиента без сетевого соединения
func attach(m *Manager, userID string) *Client {
	c := NewClient(userID, nil, m)
	m.AddClient(c)
	return c
}

func drain(c *Client) []Event {
	var out []Event
	for {
		select {
		case raw := <-c.send:
			var e Event
			if err := json.Unmarshal(raw, &e); err == nil {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func TestPublishNotificationDeduplicates(t *testing.T) {
	m := NewManager()
	phone := attach(m, "alice")
	laptop := attach(m, "alice")
	other := attach(m, "bob")

	n := models.Notification{ID: uuid.New(), Title: "Новое предложение", CreatedAt: time.Now().UTC()}
	m.PublishNotification("alice", n)
	m.PublishNotification("alice", n)

	for _, c := range []*Client{phone, laptop} {
		events := drain(c)
		require.Len(t, events, 1, "повторная доставка отбрасывается")
		assert.Equal(t, EventNewNotification, events[0].Type)
		assert.Equal(t, n.ID.String(), events[0].ID)
	}
	assert.Empty(t, drain(other))

	// События без ID не дедуплицируются
	m.BroadcastUnreadCounts("alice", 3)
	m.BroadcastUnreadCounts("alice", 3)
	assert.Len(t, drain(phone), 2)
}

func TestPublishMessage(t *testing.T) {
	m := NewManager()
	bob := attach(m, "bob")

	msg := models.Message{ID: uuid.New(), ConversationID: uuid.New(), SenderID: uuid.New(), Content: "Привет"}
	m.PublishMessage("bob", msg)

	events := drain(bob)
	require.Len(t, events, 1)
	assert.Equal(t, EventNewMessage, events[0].Type)
	assert.Equal(t, msg.ConversationID.String(), events[0].ChatID)
	assert.False(t, events[0].Timestamp.IsZero())

	var payload models.Message
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "Привет", payload.Content)
}

func TestRemoveClient(t *testing.T) {
	m := NewManager()
	c := attach(m, "alice")
	assert.True(t, m.IsOnline("alice"))

	m.RemoveClient(c.ID)
	assert.False(t, m.IsOnline("alice"))

	// Отправка пользователю без соединений ничего не делает
	m.SendToUser("alice", Event{Type: EventTyping})
	m.RemoveClient(c.ID)
}

func TestSlowClientIsDropped(t *testing.T) {
	m := NewManager()
	attach(m, "alice")

	for i := 0; i < writeBufferSize; i++ {
		m.BroadcastUnreadCounts("alice", i)
	}
	assert.True(t, m.IsOnline("alice"))

	m.BroadcastUnreadCounts("alice", writeBufferSize)
	assert.False(t, m.IsOnline("alice"))
}

func TestIncomingTypingAndRead(t *testing.T) {
	m := NewManager()
	hooks := &fakeHooks{counterpart: "bob"}
	m.SetChatHooks(hooks)
	alice := attach(m, "alice")
	bob := attach(m, "bob")

	raw, err := json.Marshal(Event{Type: EventTyping, ChatID: "chat-1"})
	require.NoError(t, err)
	alice.handleIncomingMessage(raw)

	events := drain(bob)
	require.Len(t, events, 1)
	assert.Equal(t, EventTyping, events[0].Type)
	assert.Equal(t, "alice", events[0].UserID)

	raw, err = json.Marshal(Event{Type: EventMessageRead, ChatID: "chat-1"})
	require.NoError(t, err)
	alice.handleIncomingMessage(raw)
	assert.Equal(t, []string{"chat-1"}, hooks.marked)
	assert.Len(t, drain(bob), 1)

	// Подмена отправителя игнорируется
	raw, err = json.Marshal(Event{Type: EventTyping, ChatID: "chat-1", UserID: "mallory"})
	require.NoError(t, err)
	alice.handleIncomingMessage(raw)
	assert.Empty(t, drain(bob))

	hooks.counterpart = ""
	raw, err = json.Marshal(Event{Type: EventTyping, ChatID: "chat-2"})
	require.NoError(t, err)
	alice.handleIncomingMessage(raw)
	assert.Empty(t, drain(bob))
}
