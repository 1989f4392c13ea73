package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avaria-tracker/backend/internal/storage/models"
)

// ErrTransport wraps read and write failures that end a connection.
var ErrTransport = errors.New("chat transport failure")

//go:generate mockgen -source=handler.go -destination=mocks/mock_message_store.go -package=mocks MessageStore

// MessageStore durably stores chat messages and returns the stored record,
// with its server-assigned id and timestamp.
type MessageStore interface {
	PersistMessage(ctx context.Context, avariaID, senderID, body string) (*models.ChatMessage, error)
}

// State is the lifecycle stage of a Handler.
type State int

const (
	StateOpen State = iota
	StateSubscribed
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSubscribed:
		return "subscribed"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tunes the keepalive and size limits of a chat connection.
type Options struct {
	// WriteWait bounds every write, broadcasts included.
	WriteWait time.Duration
	// PongWait is how long the peer may stay silent before the connection
	// is considered dead.
	PongWait time.Duration
	// PingPeriod must be shorter than PongWait.
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
	}
}

// Handler runs the chat protocol for exactly one connection. Its state is
// only touched by the goroutine executing Run; other connections are reached
// through the Registry.
type Handler struct {
	conn     *Connection
	registry *Registry
	store    MessageStore
	log      *slog.Logger
	opts     Options

	state    State
	avariaID string
}

// NewHandler creates a handler for a freshly upgraded transport owned by
// participantID.
func NewHandler(
	participantID string,
	transport Transport,
	registry *Registry,
	store MessageStore,
	log *slog.Logger,
	opts Options,
) *Handler {
	return &Handler{
		conn:     NewConnection(participantID, transport, opts.WriteWait),
		registry: registry,
		store:    store,
		log:      log.With("participant_id", participantID),
		opts:     opts,
		state:    StateOpen,
	}
}

// State returns the current lifecycle stage. Only meaningful from the
// goroutine running Run, or after Run has returned.
func (h *Handler) State() State {
	return h.state
}

// Connection returns the connection driven by h.
func (h *Handler) Connection() *Connection {
	return h.conn
}

// Run processes inbound frames in arrival order until the peer closes the
// connection, the transport fails or ctx is cancelled. Cancelling ctx closes
// the connection with 1001 (going away). The returned error is non-nil only
// for transport failures.
func (h *Handler) Run(ctx context.Context) error {
	t := h.conn.transport
	if h.opts.MaxMessageSize > 0 {
		t.SetReadLimit(h.opts.MaxMessageSize)
	}
	if h.opts.PongWait > 0 {
		_ = t.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		t.SetPongHandler(func(string) error {
			return t.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		})
	}

	done := make(chan struct{})
	defer close(done)
	go h.keepalive(ctx, done)

	for {
		msgType, data, err := t.ReadMessage()
		if err != nil {
			return h.terminate(ctx, err)
		}

		if msgType != websocket.TextMessage {
			h.log.Debug("Ignoring non-text frame", "type", msgType)
			continue
		}

		if err := h.handleFrame(ctx, data); err != nil {
			return h.terminate(ctx, err)
		}
	}
}

// keepalive pings the peer and closes the connection on shutdown, which
// unblocks the pending read in Run.
func (h *Handler) keepalive(ctx context.Context, done <-chan struct{}) {
	var tick <-chan time.Time
	if h.opts.PingPeriod > 0 {
		ticker := time.NewTicker(h.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = h.conn.Close(websocket.CloseGoingAway, "Server shutting down")
			return
		case <-tick:
			if err := h.conn.Ping(); err != nil {
				h.log.Debug("Keepalive ping failed", "error", err)
				_ = h.conn.Close(websocket.CloseGoingAway, "Ping failed")
				return
			}
		}
	}
}

// handleFrame processes one text frame. Protocol and application failures
// are reported to the client; only a failure to write the report is returned.
func (h *Handler) handleFrame(ctx context.Context, data []byte) error {
	in, err := DecodeChatInput(data)
	if err != nil {
		h.log.Debug("Rejected chat frame", "error", err)
		return h.sendEnvelope(ErrorEnvelope(DescInvalidFormat))
	}

	if in.AvariaID != h.avariaID {
		if err := h.switchAvaria(in.AvariaID); err != nil {
			return err
		}
	}

	msg, err := h.persist(ctx, in)
	if err != nil {
		h.log.Error("Error processing chat message", "avaria_id", in.AvariaID, "error", err)
		return h.sendEnvelope(ErrorEnvelope(DescProcessing))
	}

	payload, err := MessageEnvelope(msg).JSON()
	if err != nil {
		h.log.Error("Encoding chat message failed", "message_id", msg.ID, "error", err)
		return h.sendEnvelope(ErrorEnvelope(DescProcessing))
	}

	h.registry.Broadcast(in.AvariaID, payload)
	return nil
}

func (h *Handler) persist(ctx context.Context, in ChatInput) (msg *models.ChatMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("message store panicked: %v", rec)
		}
	}()

	msg, err = h.store.PersistMessage(ctx, in.AvariaID, h.conn.ParticipantID(), in.Message)
	if err == nil && msg == nil {
		err = errors.New("message store returned no message")
	}
	return msg, err
}

// switchAvaria moves the subscription to avariaID and confirms it to the client.
func (h *Handler) switchAvaria(avariaID string) error {
	if h.avariaID != "" {
		h.registry.Detach(h.avariaID, h.conn)
	}

	h.registry.Subscribe(avariaID, h.conn.ParticipantID(), h.conn)
	h.avariaID = avariaID
	h.state = StateSubscribed

	return h.sendEnvelope(ConnectedEnvelope(avariaID))
}

func (h *Handler) sendEnvelope(env Envelope) error {
	payload, err := env.JSON()
	if err != nil {
		h.log.Error("Encoding envelope failed", "type", env.Type, "error", err)
		return nil
	}

	if err := h.conn.Send(payload); err != nil {
		return fmt.Errorf("%w: writing %s envelope: %v", ErrTransport, env.Type, err)
	}
	return nil
}

// leave drops the current subscription. Calling it again is a no-op.
func (h *Handler) leave() {
	if h.avariaID == "" {
		return
	}
	h.registry.Detach(h.avariaID, h.conn)
	h.avariaID = ""
}

// terminate is the single cleanup path for every way a connection ends.
func (h *Handler) terminate(ctx context.Context, cause error) error {
	h.state = StateClosing
	h.leave()
	defer func() { h.state = StateClosed }()

	var closeErr *websocket.CloseError
	switch {
	case errors.As(cause, &closeErr):
		// gorilla has already answered the peer's close frame.
		h.log.Info("Chat connection closed by peer", "code", closeErr.Code)
		_ = h.conn.Close(websocket.CloseNormalClosure, "Closing")
		return nil

	case ctx.Err() != nil:
		h.log.Info("Chat connection closed on shutdown")
		_ = h.conn.Close(websocket.CloseGoingAway, "Server shutting down")
		return nil

	default:
		h.log.Warn("Chat connection failed", "error", cause)
		_ = h.conn.Close(websocket.CloseInternalServerErr, "Internal server error")
		if errors.Is(cause, ErrTransport) {
			return cause
		}
		return fmt.Errorf("%w: %v", ErrTransport, cause)
	}
}
