package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"decormart/messaging-service/internal/models"

	"github.com/lib/pq"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists")
)

type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationByUsers(ctx context.Context, userID1, userID2 string) (*models.Conversation, error)
	GetUserConversations(ctx context.Context, userID string) ([]*models.ConversationPreview, error)
	TouchLastMessageAt(ctx context.Context, conversationID string, at time.Time) error
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetConversationMessages(ctx context.Context, conversationID string, limit int, beforeMessageID string) ([]*models.Message, error)
	MarkMessagesRead(ctx context.Context, messageIDs []string, receiverID string) ([]*models.Message, error)
	Ping(ctx context.Context) error
	InitializeTables() error
}

type conversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) ConversationRepository {
	return &conversationRepository{
		db: db,
	}
}

func (r *conversationRepository) InitializeTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		initiator_id UUID NOT NULL,
		receiver_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(initiator_id, receiver_id),
		CHECK (initiator_id <> receiver_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		receiver_id UUID NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_read BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id) WHERE is_read = FALSE;
	CREATE INDEX IF NOT EXISTS idx_conversations_initiator ON conversations(initiator_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_receiver ON conversations(receiver_id);
	`

	_, err := r.db.Exec(query)
	return err
}

func (r *conversationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *conversationRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query := `
	INSERT INTO conversations (id, initiator_id, receiver_id, created_at, last_message_at)
	VALUES ($1, $2, $3, $4, $4)
	RETURNING created_at, last_message_at
	`

	err := r.db.QueryRowContext(ctx, query,
		conv.ID, conv.InitiatorID, conv.ReceiverID, conv.CreatedAt,
	).Scan(&conv.CreatedAt, &conv.LastMessageAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return ErrConversationExists
		}
		return err
	}

	return nil
}

func (r *conversationRepository) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `
	SELECT id, initiator_id, receiver_id, created_at, last_message_at
	FROM conversations
	WHERE id = $1
	`

	var conv models.Conversation
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.InitiatorID, &conv.ReceiverID, &conv.CreatedAt, &conv.LastMessageAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	return &conv, nil
}

func (r *conversationRepository) GetConversationByUsers(ctx context.Context, userID1, userID2 string) (*models.Conversation, error) {
	query := `
	SELECT id, initiator_id, receiver_id, created_at, last_message_at
	FROM conversations
	WHERE (initiator_id = $1 AND receiver_id = $2) OR (initiator_id = $2 AND receiver_id = $1)
	LIMIT 1
	`

	var conv models.Conversation
	err := r.db.QueryRowContext(ctx, query, userID1, userID2).Scan(
		&conv.ID, &conv.InitiatorID, &conv.ReceiverID, &conv.CreatedAt, &conv.LastMessageAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	return &conv, nil
}

func (r *conversationRepository) GetUserConversations(ctx context.Context, userID string) ([]*models.ConversationPreview, error) {
	query := `
	SELECT c.id, c.initiator_id, c.receiver_id, c.created_at, c.last_message_at,
	       m.id, m.conversation_id, m.sender_id, m.receiver_id, m.content, m.created_at, m.is_read,
	       (SELECT COUNT(*) FROM messages u
	        WHERE u.conversation_id = c.id AND u.receiver_id = $1 AND u.is_read = FALSE) AS unread_count
	FROM conversations c
	LEFT JOIN LATERAL (
		SELECT id, conversation_id, sender_id, receiver_id, content, created_at, is_read
		FROM messages
		WHERE conversation_id = c.id
		ORDER BY created_at DESC
		LIMIT 1
	) m ON TRUE
	WHERE c.initiator_id = $1 OR c.receiver_id = $1
	ORDER BY c.last_message_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var previews []*models.ConversationPreview
	for rows.Next() {
		var conv models.Conversation
		var msgID, msgConvID, msgSenderID, msgReceiverID, msgContent sql.NullString
		var msgCreatedAt sql.NullTime
		var msgIsRead sql.NullBool
		var unread int

		err := rows.Scan(
			&conv.ID, &conv.InitiatorID, &conv.ReceiverID, &conv.CreatedAt, &conv.LastMessageAt,
			&msgID, &msgConvID, &msgSenderID, &msgReceiverID, &msgContent, &msgCreatedAt, &msgIsRead,
			&unread,
		)
		if err != nil {
			return nil, err
		}

		preview := &models.ConversationPreview{
			Conversation: &conv,
			UnreadCount:  unread,
		}
		if msgID.Valid {
			preview.LastMessage = &models.Message{
				ID:             msgID.String,
				ConversationID: msgConvID.String,
				SenderID:       msgSenderID.String,
				ReceiverID:     msgReceiverID.String,
				Content:        msgContent.String,
				CreatedAt:      msgCreatedAt.Time,
				IsRead:         msgIsRead.Bool,
			}
		}
		previews = append(previews, preview)
	}

	return previews, rows.Err()
}

func (r *conversationRepository) TouchLastMessageAt(ctx context.Context, conversationID string, at time.Time) error {
	query := `
	UPDATE conversations
	SET last_message_at = $2
	WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, conversationID, at)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrConversationNotFound
	}

	return nil
}

func (r *conversationRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
	INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, created_at, is_read)
	VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	RETURNING created_at
	`

	return r.db.QueryRowContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt,
	).Scan(&msg.CreatedAt)
}

func (r *conversationRepository) GetConversationMessages(ctx context.Context, conversationID string, limit int, beforeMessageID string) ([]*models.Message, error) {
	var query string
	var args []interface{}

	if beforeMessageID != "" {
		query = `
		SELECT id, conversation_id, sender_id, receiver_id, content, created_at, is_read
		FROM messages
		WHERE conversation_id = $1
		  AND created_at < (SELECT created_at FROM messages WHERE id = $2)
		ORDER BY created_at DESC
		LIMIT $3
		`
		args = []interface{}{conversationID, beforeMessageID, limit}
	} else {
		query = `
		SELECT id, conversation_id, sender_id, receiver_id, content, created_at, is_read
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
		`
		args = []interface{}{conversationID, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &msg.CreatedAt, &msg.IsRead,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}

	// Oldest first for rendering.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}

// MarkMessagesRead flips is_read for the given ids, but only for rows
// addressed to receiverID that are still unread. Already-read rows and rows
// belonging to other users are skipped silently, which makes the call
// idempotent. The affected rows are returned so the caller can notify the
// original senders.
func (r *conversationRepository) MarkMessagesRead(ctx context.Context, messageIDs []string, receiverID string) ([]*models.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query := `
	UPDATE messages
	SET is_read = TRUE
	WHERE id = ANY($1) AND receiver_id = $2 AND is_read = FALSE
	RETURNING id, conversation_id, sender_id, receiver_id, content, created_at, is_read
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(messageIDs), receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var affected []*models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &msg.CreatedAt, &msg.IsRead,
		)
		if err != nil {
			return nil, err
		}
		affected = append(affected, &msg)
	}

	return affected, rows.Err()
}
