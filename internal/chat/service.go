// Package chat stores avaria chat messages and their read receipts.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/avaria-tracker/backend/internal/storage/models"
)

var (
	ErrInvalidInput    = errors.New("invalid chat input")
	ErrPersistence     = errors.New("chat persistence failure")
	ErrMessageNotFound = errors.New("chat message not found")
)

var validate = validator.New()

// MessageRepository is the message storage used by Service.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	GetByID(ctx context.Context, id string) (*models.ChatMessage, error)
	ListByAvaria(ctx context.Context, avariaID string) ([]models.ChatMessage, error)
}

// ReceiptRepository is the read receipt storage used by Service.
type ReceiptRepository interface {
	Upsert(ctx context.Context, messageID, userID string) (*models.ReadReceipt, error)
	ListByMessage(ctx context.Context, messageID string) ([]models.ReadReceipt, error)
}

// Service implements the chat use cases on top of the repositories.
type Service struct {
	messages MessageRepository
	receipts ReceiptRepository
	log      *slog.Logger
}

// NewService creates a chat service.
func NewService(messages MessageRepository, receipts ReceiptRepository, log *slog.Logger) *Service {
	return &Service{messages: messages, receipts: receipts, log: log}
}

type newMessage struct {
	AvariaID string `validate:"required"`
	SenderID string `validate:"required"`
	Body     string `validate:"required"`
}

// PersistMessage stores a message posted by senderID into an avaria
// conversation and returns it with its server-assigned id and send time.
func (s *Service) PersistMessage(ctx context.Context, avariaID, senderID, body string) (*models.ChatMessage, error) {
	in := newMessage{AvariaID: avariaID, SenderID: senderID, Body: body}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	id, err := canonicalID(avariaID)
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{AvariaID: id, SenderID: senderID, Message: body}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.log.Debug("Chat message stored", "message_id", msg.ID, "avaria_id", id, "sender_id", senderID)
	return msg, nil
}

// History returns the messages of an avaria, oldest first.
func (s *Service) History(ctx context.Context, avariaID string) ([]models.ChatMessage, error) {
	id, err := canonicalID(avariaID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByAvaria(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return messages, nil
}

// MarkRead records that userID has read messageID.
func (s *Service) MarkRead(ctx context.Context, messageID, userID string) (*models.ReadReceipt, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidInput)
	}
	msg, err := s.message(ctx, messageID)
	if err != nil {
		return nil, err
	}

	receipt, err := s.receipts.Upsert(ctx, msg.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return receipt, nil
}

// Receipts lists who has read messageID.
func (s *Service) Receipts(ctx context.Context, messageID string) ([]models.ReadReceipt, error) {
	msg, err := s.message(ctx, messageID)
	if err != nil {
		return nil, err
	}

	receipts, err := s.receipts.ListByMessage(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if receipts == nil {
		receipts = []models.ReadReceipt{}
	}
	return receipts, nil
}

func (s *Service) message(ctx context.Context, messageID string) (*models.ChatMessage, error) {
	id, err := canonicalID(messageID)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

func canonicalID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a valid id", ErrInvalidInput, s)
	}
	return id.String(), nil
}
