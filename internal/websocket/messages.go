package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/avaria-tracker/backend/internal/storage/models"
)

// EnvelopeType identifies the kind of a server -> client frame.
type EnvelopeType string

const (
	TypeConnected EnvelopeType = "connected"
	TypeMessage   EnvelopeType = "message"
	TypeError     EnvelopeType = "error"
)

// Descriptions carried by error envelopes.
const (
	DescInvalidFormat = "Invalid message format"
	DescProcessing    = "Error processing message"
)

// ErrInvalidFrame is returned when an inbound frame cannot be used.
var ErrInvalidFrame = errors.New("invalid chat frame")

var validate = validator.New()

// Envelope is the only shape the server ever writes to a chat socket.
// Exactly one of AvariaID, Message and Error is set, according to Type.
type Envelope struct {
	Type     EnvelopeType        `json:"type"`
	AvariaID string              `json:"avariaId,omitempty"`
	Message  *models.ChatMessage `json:"message,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// ConnectedEnvelope confirms the subscription to an avaria conversation.
func ConnectedEnvelope(avariaID string) Envelope {
	return Envelope{Type: TypeConnected, AvariaID: avariaID}
}

// MessageEnvelope carries a stored chat message.
func MessageEnvelope(msg *models.ChatMessage) Envelope {
	return Envelope{Type: TypeMessage, Message: msg}
}

// ErrorEnvelope reports a failure to the client that caused it.
func ErrorEnvelope(description string) Envelope {
	return Envelope{Type: TypeError, Error: description}
}

// JSON serializes the envelope to JSON bytes.
func (e Envelope) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChatInput is the client -> server frame. AvariaID must be a UUID in any
// letter case; anything else is rejected as an invalid frame.
type ChatInput struct {
	AvariaID string `json:"avariaId" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

// DecodeChatInput parses and validates an inbound frame. The avaria id is
// returned in canonical lowercase UUID form.
func DecodeChatInput(data []byte) (ChatInput, error) {
	var in ChatInput
	if err := json.Unmarshal(data, &in); err != nil {
		return ChatInput{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := validate.Struct(in); err != nil {
		return ChatInput{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	id, err := uuid.Parse(in.AvariaID)
	if err != nil {
		return ChatInput{}, fmt.Errorf("%w: avariaId: %v", ErrInvalidFrame, err)
	}
	in.AvariaID = id.String()

	return in, nil
}
