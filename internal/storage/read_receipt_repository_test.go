package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avaria-tracker/backend/internal/storage/models"
)

func TestReadReceiptRepository_UpsertKeepsFirstReceipt(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := newTestDB(t)
	messages := NewChatMessageRepository(db)
	receipts := NewReadReceiptRepository(db)

	msg := &models.ChatMessage{AvariaID: uuid.NewString(), SenderID: "sender", Message: "hi"}
	req.NoError(messages.Create(ctx, msg))

	first, err := receipts.Upsert(ctx, msg.ID, "reader")
	req.NoError(err)
	second, err := receipts.Upsert(ctx, msg.ID, "reader")
	req.NoError(err)
	req.Equal(first.ID, second.ID)

	list, err := receipts.ListByMessage(ctx, msg.ID)
	req.NoError(err)
	req.Len(list, 1)
	req.Equal("reader", list[0].UserID)
}

func TestReadReceiptRepository_UnknownMessageFails(t *testing.T) {
	receipts := NewReadReceiptRepository(newTestDB(t))

	_, err := receipts.Upsert(context.Background(), uuid.NewString(), "reader")
	require.Error(t, err)
}
