package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var errClosedTransport = errors.New("use of closed network connection")

type inboundFrame struct {
	typ  int
	data []byte
}

// fakeTransport is an in-memory Transport. Frames pushed with send are
// returned by ReadMessage; text frames written by the server arrive on out.
type fakeTransport struct {
	in     chan inboundFrame
	out    chan []byte
	closed chan struct{}

	closeOnce     sync.Once
	peerCloseOnce sync.Once

	mu         sync.Mutex
	writeErr   error
	closeCodes []int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan inboundFrame, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) send(payload string) {
	f.in <- inboundFrame{typ: websocket.TextMessage, data: []byte(payload)}
}

func (f *fakeTransport) sendJSON(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.in <- inboundFrame{typ: websocket.TextMessage, data: data}
}

// peerClose makes the next read report a normal close from the peer.
func (f *fakeTransport) peerClose() {
	f.peerCloseOnce.Do(func() { close(f.in) })
}

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case frame, ok := <-f.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return frame.typ, frame.data, nil
	case <-f.closed:
		return 0, nil, errClosedTransport
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errClosedTransport
	default:
	}

	f.mu.Lock()
	err := f.writeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	f.out <- append([]byte(nil), data...)
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		f.mu.Lock()
		f.closeCodes = append(f.closeCodes, int(data[0])<<8|int(data[1]))
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeTransport) SetReadLimit(int64)                 {}
func (f *fakeTransport) SetReadDeadline(time.Time) error    { return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error   { return nil }
func (f *fakeTransport) SetPongHandler(func(string) error) {}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) sentCloseCodes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closeCodes...)
}

// next returns the next envelope written to the transport.
func (f *fakeTransport) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case data := <-f.out:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no envelope written")
		return Envelope{}
	}
}

// assertSilent checks that nothing is written within a short window.
func (f *fakeTransport) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.out:
		require.Failf(t, "unexpected envelope", "%s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}
