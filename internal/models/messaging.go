package models

import (
	"time"
)

// Conversation is a durable messaging thread between exactly two users.
// The initiator is whoever opened the thread; roles never change afterward.
type Conversation struct {
	ID            string    `json:"id"`
	InitiatorID   string    `json:"initiator_id"`
	ReceiverID    string    `json:"receiver_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.InitiatorID == userID || c.ReceiverID == userID
}

// OtherParticipant returns the participant that is not userID.
// The caller must have checked HasParticipant first.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.InitiatorID == userID {
		return c.ReceiverID
	}
	return c.InitiatorID
}

// Message is a single persisted chat message. IsRead flips from false to
// true exactly once; it never reverts.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	IsRead         bool      `json:"is_read"`
}

// ConversationPreview is what the inbox list renders: the conversation,
// its most recent message (nil for a thread created without one), and the
// caller's unread count.
type ConversationPreview struct {
	Conversation *Conversation `json:"conversation"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
}
