// Package events defines the wire schema of the bidirectional event channel.
// Both the gateway and any client adapter use these types, so sender and
// receiver cannot disagree on a payload shape.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"decormart/messaging-service/internal/models"
)

const (
	EventMessageNew  = "message.new"
	EventMessageRead = "message.read"
	EventUserTyping  = "user.typing"
	EventError       = "error"
)

var ErrUnknownEvent = errors.New("unknown event")

// Envelope frames every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is the tagged union of client-to-server events. Exactly one
// concrete type is produced per decoded frame.
type Inbound interface {
	inbound()
}

// NewMessage asks the router to persist and deliver a message.
type NewMessage struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// MarkRead flags a batch of messages addressed to the caller as read.
// The batch may span conversations.
type MarkRead struct {
	MessageIDs []string `json:"message_ids"`
}

// Typing relays a transient typing indicator. Never persisted.
type Typing struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

func (*NewMessage) inbound() {}
func (*MarkRead) inbound()   {}
func (*Typing) inbound()     {}

// Decode parses a raw frame into its typed inbound event.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed event frame: %w", err)
	}

	switch env.Event {
	case EventMessageNew:
		var ev NewMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
		return &ev, nil
	case EventMessageRead:
		var ev MarkRead
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
		return &ev, nil
	case EventUserTyping:
		var ev Typing
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
		return &ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// Outbound is a server-to-client event ready for marshalling.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// MessagePush carries a persisted message: the delivery to the receiver and
// the echo acknowledgement to the sender share this shape.
type MessagePush struct {
	Message *models.Message `json:"message"`
}

// ReadPush tells the original sender that userID read messageIDs. One push
// is emitted per conversation in a mark-read batch.
type ReadPush struct {
	UserID         string   `json:"user_id"`
	MessageIDs     []string `json:"message_ids"`
	ConversationID string   `json:"conversation_id"`
}

// TypingPush relays a peer's typing indicator.
type TypingPush struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// ErrorPush reports a failed event back to its originating connection.
type ErrorPush struct {
	Message string `json:"message"`
}

func NewMessagePush(msg *models.Message) Outbound {
	return Outbound{Event: EventMessageNew, Data: MessagePush{Message: msg}}
}

func NewReadPush(userID string, messageIDs []string, conversationID string) Outbound {
	return Outbound{Event: EventMessageRead, Data: ReadPush{
		UserID:         userID,
		MessageIDs:     messageIDs,
		ConversationID: conversationID,
	}}
}

func NewTypingPush(conversationID, userID string, isTyping bool) Outbound {
	return Outbound{Event: EventUserTyping, Data: TypingPush{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	}}
}

func NewErrorPush(message string) Outbound {
	return Outbound{Event: EventError, Data: ErrorPush{Message: message}}
}
