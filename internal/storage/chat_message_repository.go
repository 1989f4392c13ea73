package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avaria-tracker/backend/internal/storage/models"
)

// ChatMessageRepository provides data access for avaria chat messages.
type ChatMessageRepository struct {
	BaseRepository
}

// NewChatMessageRepository creates a new chat message repository.
func NewChatMessageRepository(db *DB) *ChatMessageRepository {
	return &ChatMessageRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create assigns an id and a send time to msg and inserts it.
func (r *ChatMessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	msg.ID = GenerateID()
	msg.SentAt = r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO chat_messages (id, avaria_id, sender_id, message, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.AvariaID, msg.SenderID, msg.Message, msg.SentAt)
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}

	return nil
}

// GetByID retrieves a message by its ID. It returns nil when no message matches.
func (r *ChatMessageRepository) GetByID(ctx context.Context, id string) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT id, avaria_id, sender_id, message, sent_at
		FROM chat_messages WHERE id = ?
	`, id).Scan(&msg.ID, &msg.AvariaID, &msg.SenderID, &msg.Message, &msg.SentAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat message: %w", err)
	}

	return msg, nil
}

// ListByAvaria returns the conversation of an avaria, oldest message first.
func (r *ChatMessageRepository) ListByAvaria(ctx context.Context, avariaID string) ([]models.ChatMessage, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, avaria_id, sender_id, message, sent_at
		FROM chat_messages
		WHERE avaria_id = ?
		ORDER BY sent_at, rowid
	`, avariaID)
	if err != nil {
		return nil, fmt.Errorf("querying chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.AvariaID, &msg.SenderID, &msg.Message, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
