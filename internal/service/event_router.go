package service

import (
	"context"
	"errors"
	"time"

	"decormart/messaging-service/internal/events"
	"decormart/messaging-service/internal/models"
	"decormart/messaging-service/internal/notify"
	"decormart/messaging-service/internal/presence"
	"decormart/messaging-service/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Error messages surfaced over the wire. A missing conversation reads the
// same as a foreign one so the event cannot be used to probe for
// existence.
const (
	pushErrUnauthorized = "Unauthorized"
	pushErrSendFailed   = "Failed to send message"
)

// EventRouter is the protocol state machine: it validates inbound socket
// events, persists the resulting state change, and pushes the outbound
// events to whichever participants are currently reachable. Every event is
// a complete, independently validated unit; failures are converted to an
// error push on the originating connection and never escape.
type EventRouter struct {
	repository repository.ConversationRepository
	registry   *presence.Registry
	notifier   notify.Notifier
	logger     *logrus.Logger
	now        func() time.Time
}

func NewEventRouter(repo repository.ConversationRepository, registry *presence.Registry, notifier notify.Notifier, logger *logrus.Logger) *EventRouter {
	return &EventRouter{
		repository: repo,
		registry:   registry,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleEvent dispatches one decoded inbound event from sender's
// connection. Called sequentially per connection by the gateway's read
// loop.
func (r *EventRouter) HandleEvent(ctx context.Context, sender presence.Conn, ev events.Inbound) {
	switch e := ev.(type) {
	case *events.NewMessage:
		r.handleNewMessage(ctx, sender, e)
	case *events.MarkRead:
		r.handleMarkRead(ctx, sender, e)
	case *events.Typing:
		r.handleTyping(ctx, sender, e)
	}
}

func (r *EventRouter) handleNewMessage(ctx context.Context, sender presence.Conn, ev *events.NewMessage) {
	senderID := sender.UserID()

	conv, err := r.repository.GetConversationByID(ctx, ev.ConversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			sender.Send(events.NewErrorPush(pushErrUnauthorized))
			return
		}
		r.logger.WithError(err).WithField("conversation_id", ev.ConversationID).Error("Failed to load conversation")
		sender.Send(events.NewErrorPush(pushErrSendFailed))
		return
	}

	if !conv.HasParticipant(senderID) {
		r.logger.WithFields(logrus.Fields{
			"conversation_id": conv.ID,
			"user_id":         senderID,
		}).Warn("Rejected message from non-participant")
		sender.Send(events.NewErrorPush(pushErrUnauthorized))
		return
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     conv.OtherParticipant(senderID),
		Content:        ev.Content,
		CreatedAt:      r.now().UTC(),
	}

	if err := r.repository.CreateMessage(ctx, msg); err != nil {
		r.logger.WithError(err).WithField("conversation_id", conv.ID).Error("Failed to persist message")
		sender.Send(events.NewErrorPush(pushErrSendFailed))
		return
	}

	if err := r.repository.TouchLastMessageAt(ctx, conv.ID, msg.CreatedAt); err != nil {
		r.logger.WithError(err).WithField("conversation_id", conv.ID).Error("Failed to update conversation activity")
		sender.Send(events.NewErrorPush(pushErrSendFailed))
		return
	}

	push := events.NewMessagePush(msg)
	if receiver, ok := r.registry.Lookup(msg.ReceiverID); ok {
		receiver.Send(push)
	}
	// The echo is the sender's only send confirmation.
	sender.Send(push)

	if err := r.notifier.MessageCreated(ctx, msg); err != nil {
		r.logger.WithError(err).WithField("message_id", msg.ID).Warn("Notification emit failed")
	}

	r.logger.WithFields(logrus.Fields{
		"message_id":      msg.ID,
		"conversation_id": conv.ID,
		"sender_id":       senderID,
	}).Info("Message routed")
}

func (r *EventRouter) handleMarkRead(ctx context.Context, sender presence.Conn, ev *events.MarkRead) {
	if len(ev.MessageIDs) == 0 {
		return
	}
	callerID := sender.UserID()

	affected, err := r.repository.MarkMessagesRead(ctx, ev.MessageIDs, callerID)
	if err != nil {
		// Fire-and-forget from the caller's perspective; nothing to push.
		r.logger.WithError(err).WithField("user_id", callerID).Error("Failed to mark messages read")
		return
	}
	if len(affected) == 0 {
		return
	}

	// A batch may span conversations; group the receipt pushes per
	// conversation so each sender sees only its own message ids.
	byConversation := make(map[string][]*models.Message)
	for _, msg := range affected {
		byConversation[msg.ConversationID] = append(byConversation[msg.ConversationID], msg)
	}

	for conversationID, msgs := range byConversation {
		ids := make([]string, len(msgs))
		for i, msg := range msgs {
			ids[i] = msg.ID
		}
		// Within one conversation all messages addressed to the caller
		// share a sender: the other participant.
		if peer, ok := r.registry.Lookup(msgs[0].SenderID); ok {
			peer.Send(events.NewReadPush(callerID, ids, conversationID))
		}
	}

	r.logger.WithFields(logrus.Fields{
		"user_id": callerID,
		"count":   len(affected),
	}).Debug("Messages marked read")
}

func (r *EventRouter) handleTyping(ctx context.Context, sender presence.Conn, ev *events.Typing) {
	senderID := sender.UserID()

	// Typing is best-effort: anything that would be an error for
	// message.new is a silent drop here.
	conv, err := r.repository.GetConversationByID(ctx, ev.ConversationID)
	if err != nil {
		return
	}
	if !conv.HasParticipant(senderID) {
		return
	}

	if peer, ok := r.registry.Lookup(conv.OtherParticipant(senderID)); ok {
		peer.Send(events.NewTypingPush(conv.ID, senderID, ev.IsTyping))
	}
}
