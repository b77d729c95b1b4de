package repository

import (
	"context"
	"time"

	"github.com/NdodaEnde/Telehealth-sub000/internal/models"
)

const messageColumns = `
	id, conversation_id, sender_id, sender_name, sender_role, content,
	message_type, file_url, file_name, file_size, read_at, created_at
`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	query := `
		INSERT INTO messages (
			id, conversation_id, sender_id, sender_name, sender_role,
			content, message_type, file_url, file_name, file_size
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	return r.db.QueryRow(
		ctx,
		query,
		message.ID,
		message.ConversationID,
		message.SenderID,
		message.SenderName,
		message.SenderRole,
		message.Content,
		message.MessageType,
		message.FileURL,
		message.FileName,
		message.FileSize,
	).Scan(&message.CreatedAt)
}

// ListByConversation returns up to limit messages in chronological order. A
// non-nil before cursor restricts the window to older history.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID string,
	limit int,
	before *time.Time,
) ([]models.ChatMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
	`
	args := []any{conversationID}

	if before != nil {
		args = append(args, *before)
		query += " AND created_at < $2"
	}

	args = append(args, limit)
	if before != nil {
		query += " ORDER BY created_at DESC, id DESC LIMIT $3"
	} else {
		query += " ORDER BY created_at DESC, id DESC LIMIT $2"
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var message models.ChatMessage
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.SenderName,
			&message.SenderRole,
			&message.Content,
			&message.MessageType,
			&message.FileURL,
			&message.FileName,
			&message.FileSize,
			&message.ReadAt,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// fetched newest-first; hand back oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID string,
	readerID string,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET read_at = NOW()
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND read_at IS NULL
	`, conversationID, readerID)
	return err
}
