package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"decormart/messaging-service/internal/events"
	"decormart/messaging-service/internal/models"
	"decormart/messaging-service/internal/notify"
	"decormart/messaging-service/internal/presence"
	"decormart/messaging-service/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotParticipant   = errors.New("user is not a participant in this conversation")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrEmptyMessage     = errors.New("message content is required")
)

// Messaging is the request/response surface around the socket core: the
// inbox list, conversation bootstrap, and history fetch used by the
// storefront's REST handlers.
type Messaging interface {
	ListConversations(ctx context.Context, userID string) ([]*models.ConversationPreview, error)
	StartConversation(ctx context.Context, initiatorID, receiverID, initialMessage string) (*models.Conversation, *models.Message, error)
	ConversationMessages(ctx context.Context, userID, conversationID string, limit int, beforeMessageID string) ([]*models.Message, error)
}

type messaging struct {
	repository repository.ConversationRepository
	registry   *presence.Registry
	notifier   notify.Notifier
	logger     *logrus.Logger
	now        func() time.Time
}

func NewMessaging(repo repository.ConversationRepository, registry *presence.Registry, notifier notify.Notifier, logger *logrus.Logger) Messaging {
	return &messaging{
		repository: repo,
		registry:   registry,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *messaging) ListConversations(ctx context.Context, userID string) ([]*models.ConversationPreview, error) {
	previews, err := s.repository.GetUserConversations(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to list conversations")
		return nil, err
	}
	return previews, nil
}

// StartConversation finds or creates the thread between the two users and
// persists the first message. The receiver gets a message.new push when
// connected; the HTTP response itself is the initiator's acknowledgement.
func (s *messaging) StartConversation(ctx context.Context, initiatorID, receiverID, initialMessage string) (*models.Conversation, *models.Message, error) {
	if initiatorID == receiverID {
		return nil, nil, ErrSelfConversation
	}
	if strings.TrimSpace(initialMessage) == "" {
		return nil, nil, ErrEmptyMessage
	}

	conv, err := s.repository.GetConversationByUsers(ctx, initiatorID, receiverID)
	if errors.Is(err, repository.ErrConversationNotFound) {
		conv = &models.Conversation{
			ID:          uuid.New().String(),
			InitiatorID: initiatorID,
			ReceiverID:  receiverID,
			CreatedAt:   s.now().UTC(),
		}
		if createErr := s.repository.CreateConversation(ctx, conv); createErr != nil {
			// A concurrent request may have created the pair's thread
			// between lookup and insert; fall back to it.
			if errors.Is(createErr, repository.ErrConversationExists) {
				conv, err = s.repository.GetConversationByUsers(ctx, initiatorID, receiverID)
				if err != nil {
					return nil, nil, err
				}
			} else {
				s.logger.WithError(createErr).Error("Failed to create conversation")
				return nil, nil, createErr
			}
		} else {
			s.logger.WithFields(logrus.Fields{
				"conversation_id": conv.ID,
				"initiator_id":    initiatorID,
				"receiver_id":     receiverID,
			}).Info("Conversation created")
		}
	} else if err != nil {
		s.logger.WithError(err).Error("Failed to look up conversation")
		return nil, nil, err
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       initiatorID,
		ReceiverID:     conv.OtherParticipant(initiatorID),
		Content:        initialMessage,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.repository.CreateMessage(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conv.ID).Error("Failed to persist initial message")
		return nil, nil, err
	}
	if err := s.repository.TouchLastMessageAt(ctx, conv.ID, msg.CreatedAt); err != nil {
		s.logger.WithError(err).WithField("conversation_id", conv.ID).Error("Failed to update conversation activity")
		return nil, nil, err
	}
	conv.LastMessageAt = msg.CreatedAt

	if receiver, ok := s.registry.Lookup(msg.ReceiverID); ok {
		receiver.Send(events.NewMessagePush(msg))
	}
	if err := s.notifier.MessageCreated(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("message_id", msg.ID).Warn("Notification emit failed")
	}

	return conv, msg, nil
}

func (s *messaging) ConversationMessages(ctx context.Context, userID, conversationID string, limit int, beforeMessageID string) ([]*models.Message, error) {
	conv, err := s.repository.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	messages, err := s.repository.GetConversationMessages(ctx, conversationID, limit, beforeMessageID)
	if err != nil {
		s.logger.WithError(err).WithField("conversation_id", conversationID).Error("Failed to get conversation messages")
		return nil, err
	}
	return messages, nil
}
