package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when writing to a connection after Close.
var ErrConnectionClosed = errors.New("connection closed")

// Transport is the subset of *websocket.Conn used by the chat. It exists so
// handlers can be driven by an in-memory transport in tests.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Connection is a live socket owned by one participant.
//
// gorilla/websocket supports a single concurrent writer, while a connection
// is written to both by its own handler and by broadcasts triggered from
// other handlers, so every data frame goes through writeMu.
type Connection struct {
	participantID string
	transport     Transport
	writeWait     time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewConnection wraps transport for participantID. writeWait bounds every
// write; zero disables the deadline.
func NewConnection(participantID string, transport Transport, writeWait time.Duration) *Connection {
	return &Connection{
		participantID: participantID,
		transport:     transport,
		writeWait:     writeWait,
	}
}

// ParticipantID returns the authenticated owner of the connection.
func (c *Connection) ParticipantID() string {
	return c.participantID
}

// IsOpen reports whether Close has not been called yet.
func (c *Connection) IsOpen() bool {
	return !c.closed.Load()
}

// Send writes data as a single text frame.
func (c *Connection) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeWait > 0 {
		if err := c.transport.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
			return err
		}
	}
	return c.transport.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a keepalive ping control frame.
func (c *Connection) Ping() error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.transport.WriteControl(websocket.PingMessage, nil, c.deadline())
}

// Close attempts a close handshake with the given code and releases the
// transport. Only the first call has any effect; failure to deliver the
// close frame is ignored.
func (c *Connection) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.transport.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), c.deadline())
		err = c.transport.Close()
	})
	return err
}

func (c *Connection) deadline() time.Time {
	if c.writeWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.writeWait)
}
