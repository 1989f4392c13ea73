package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avaria-tracker/backend/internal/storage/models"
)

// ReadReceiptRepository provides data access for message read receipts.
type ReadReceiptRepository struct {
	BaseRepository
}

// NewReadReceiptRepository creates a new read receipt repository.
func NewReadReceiptRepository(db *DB) *ReadReceiptRepository {
	return &ReadReceiptRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Upsert records that userID read messageID and returns the stored receipt.
// Marking the same message read twice keeps the first receipt.
func (r *ReadReceiptRepository) Upsert(ctx context.Context, messageID, userID string) (*models.ReadReceipt, error) {
	receipt := &models.ReadReceipt{}

	err := r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO message_read_receipts (id, chat_message_id, user_id, read_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (chat_message_id, user_id) DO NOTHING
		`, GenerateID(), messageID, userID, r.Now())
		if err != nil {
			return fmt.Errorf("inserting read receipt: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			SELECT id, chat_message_id, user_id, read_at
			FROM message_read_receipts
			WHERE chat_message_id = ? AND user_id = ?
		`, messageID, userID).Scan(&receipt.ID, &receipt.ChatMessageID, &receipt.UserID, &receipt.ReadAt)
		if err != nil {
			return fmt.Errorf("querying read receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return receipt, nil
}

// ListByMessage returns all receipts of a message, earliest first.
func (r *ReadReceiptRepository) ListByMessage(ctx context.Context, messageID string) ([]models.ReadReceipt, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, chat_message_id, user_id, read_at
		FROM message_read_receipts
		WHERE chat_message_id = ?
		ORDER BY read_at
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("querying read receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.ReadReceipt
	for rows.Next() {
		var rr models.ReadReceipt
		if err := rows.Scan(&rr.ID, &rr.ChatMessageID, &rr.UserID, &rr.ReadAt); err != nil {
			return nil, fmt.Errorf("scanning read receipt: %w", err)
		}
		receipts = append(receipts, rr)
	}

	return receipts, rows.Err()
}
