package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"decormart/messaging-service/internal/events"
	"decormart/messaging-service/internal/models"
	"decormart/messaging-service/internal/repository"
)

// fakeRepo is an in-memory ConversationRepository with per-call error
// injection.
type fakeRepo struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message

	getConversationErr error
	createMessageErr   error
	touchErr           error
	markReadErr        error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
	}
}

func (f *fakeRepo) addConversation(id, initiatorID, receiverID string) *models.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv := &models.Conversation{
		ID:            id,
		InitiatorID:   initiatorID,
		ReceiverID:    receiverID,
		CreatedAt:     time.Now().UTC(),
		LastMessageAt: time.Now().UTC(),
	}
	f.conversations[id] = conv
	return conv
}

func (f *fakeRepo) addMessage(id, conversationID, senderID, receiverID, content string) *models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := &models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	f.messages[id] = msg
	return msg
}

func (f *fakeRepo) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeRepo) singleMessage() *models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		return msg
	}
	return nil
}

func (f *fakeRepo) CreateConversation(_ context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.conversations {
		if (existing.InitiatorID == conv.InitiatorID && existing.ReceiverID == conv.ReceiverID) ||
			(existing.InitiatorID == conv.ReceiverID && existing.ReceiverID == conv.InitiatorID) {
			return repository.ErrConversationExists
		}
	}
	conv.LastMessageAt = conv.CreatedAt
	f.conversations[conv.ID] = conv
	return nil
}

func (f *fakeRepo) GetConversationByID(_ context.Context, id string) (*models.Conversation, error) {
	if f.getConversationErr != nil {
		return nil, f.getConversationErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

func (f *fakeRepo) GetConversationByUsers(_ context.Context, userID1, userID2 string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.conversations {
		if (conv.InitiatorID == userID1 && conv.ReceiverID == userID2) ||
			(conv.InitiatorID == userID2 && conv.ReceiverID == userID1) {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, repository.ErrConversationNotFound
}

func (f *fakeRepo) GetUserConversations(_ context.Context, userID string) ([]*models.ConversationPreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var previews []*models.ConversationPreview
	for _, conv := range f.conversations {
		if !conv.HasParticipant(userID) {
			continue
		}
		preview := &models.ConversationPreview{Conversation: conv}
		for _, msg := range f.messages {
			if msg.ConversationID != conv.ID {
				continue
			}
			if preview.LastMessage == nil || msg.CreatedAt.After(preview.LastMessage.CreatedAt) {
				preview.LastMessage = msg
			}
			if msg.ReceiverID == userID && !msg.IsRead {
				preview.UnreadCount++
			}
		}
		previews = append(previews, preview)
	}
	sort.Slice(previews, func(i, j int) bool {
		return previews[i].Conversation.LastMessageAt.After(previews[j].Conversation.LastMessageAt)
	})
	return previews, nil
}

func (f *fakeRepo) TouchLastMessageAt(_ context.Context, conversationID string, at time.Time) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[conversationID]
	if !ok {
		return repository.ErrConversationNotFound
	}
	conv.LastMessageAt = at
	return nil
}

func (f *fakeRepo) CreateMessage(_ context.Context, msg *models.Message) error {
	if f.createMessageErr != nil {
		return f.createMessageErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *msg
	f.messages[msg.ID] = &copied
	return nil
}

func (f *fakeRepo) GetConversationMessages(_ context.Context, conversationID string, limit int, beforeMessageID string) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var msgs []*models.Message
	var before *models.Message
	if beforeMessageID != "" {
		before = f.messages[beforeMessageID]
	}
	for _, msg := range f.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if before != nil && !msg.CreatedAt.Before(before.CreatedAt) {
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeRepo) MarkMessagesRead(_ context.Context, messageIDs []string, receiverID string) ([]*models.Message, error) {
	if f.markReadErr != nil {
		return nil, f.markReadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var affected []*models.Message
	for _, id := range messageIDs {
		msg, ok := f.messages[id]
		if !ok || msg.ReceiverID != receiverID || msg.IsRead {
			continue
		}
		msg.IsRead = true
		copied := *msg
		affected = append(affected, &copied)
	}
	return affected, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }

func (f *fakeRepo) InitializeTables() error { return nil }

// fakeConn records every push it receives.
type fakeConn struct {
	userID string
	mu     sync.Mutex
	pushed []events.Outbound
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{userID: userID}
}

func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(ev events.Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushed = append(c.pushed, ev)
	return true
}

func (c *fakeConn) events() []events.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Outbound, len(c.pushed))
	copy(out, c.pushed)
	return out
}

// recordingNotifier captures the fire-and-forget notification hook.
type recordingNotifier struct {
	mu      sync.Mutex
	created []*models.Message
	err     error
}

func (n *recordingNotifier) MessageCreated(_ context.Context, msg *models.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, msg)
	return n.err
}

func (n *recordingNotifier) Close() {}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.created)
}
