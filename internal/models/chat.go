package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind определяет тип сообщения
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindSystem MessageKind = "system"
)

// Conversation представляет диалог между двумя пользователями.
// Пара участников хранится упорядоченной: ParticipantA < ParticipantB.
type Conversation struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ParticipantA    uuid.UUID  `db:"participant_a" json:"participant_a"`
	ParticipantB    uuid.UUID  `db:"participant_b" json:"participant_b"`
	TradeProposalID *uuid.UUID `db:"trade_proposal_id" json:"trade_proposal_id,omitempty"`
	LastMessageText string     `db:"last_message_text" json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	// Дополнительные поля для API
	UnreadCount int   `db:"unread_count" json:"unread_count"`
	Counterpart *User `db:"-" json:"counterpart,omitempty"`
}

// OrderedPair возвращает участников в порядке хранения
func OrderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// HasParticipant сообщает, участвует ли пользователь в диалоге
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other возвращает собеседника пользователя
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message представляет сообщение в диалоге
type Message struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	ConversationID  uuid.UUID   `db:"conversation_id" json:"conversation_id"`
	SenderID        uuid.UUID   `db:"sender_id" json:"sender_id"`
	ReceiverID      uuid.UUID   `db:"receiver_id" json:"receiver_id"`
	Content         string      `db:"content" json:"content"`
	Kind            MessageKind `db:"kind" json:"kind"`
	TradeProposalID *uuid.UUID  `db:"trade_proposal_id" json:"trade_proposal_id,omitempty"`
	ReadAt          *time.Time  `db:"read_at" json:"read_at,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}
