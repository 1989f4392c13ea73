package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaria-tracker/backend/internal/auth"
	"github.com/avaria-tracker/backend/internal/chat"
	"github.com/avaria-tracker/backend/internal/storage"
	"github.com/avaria-tracker/backend/internal/storage/models"
	"github.com/avaria-tracker/backend/internal/websocket"
)

type testServer struct {
	*httptest.Server
	tokens   *auth.TokenValidator
	registry *websocket.Registry
	cancel   context.CancelFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := storage.NewMemoryDB()
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(context.Background(), db, log))

	ctx, cancel := context.WithCancel(context.Background())
	tokens := auth.NewTokenValidator([]byte("0123456789abcdef0123456789abcdef"), "cmapi", "")
	registry := websocket.NewRegistry(log)
	svc := chat.NewService(storage.NewChatMessageRepository(db), storage.NewReadReceiptRepository(db), log)

	srv := httptest.NewServer(NewRouter(Dependencies{
		ServerContext: ctx,
		DB:            db,
		Chat:          svc,
		Registry:      registry,
		Tokens:        tokens,
		Socket:        websocket.DefaultOptions(),
		Version:       "test",
		Log:           log,
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = db.Close()
	})

	return &testServer{Server: srv, tokens: tokens, registry: registry, cancel: cancel}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.tokens.GenerateToken(userID, "", time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) dial(t *testing.T, userID string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + ChatSocketPath + "?access_token=" + s.token(t, userID)
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) get(t *testing.T, path, userID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readEnvelope(t *testing.T, conn *gorilla.Conn) websocket.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env websocket.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func assertNoEnvelope(t *testing.T, conn *gorilla.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", data)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}

func TestChatSocket_EndToEnd(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	avaria := uuid.NewString()
	alice, bob := uuid.NewString(), uuid.NewString()

	bobConn := srv.dial(t, bob)
	req.NoError(bobConn.WriteJSON(map[string]string{"avariaId": avaria, "message": "on my way"}))
	req.Equal(websocket.ConnectedEnvelope(avaria), readEnvelope(t, bobConn))
	req.Equal("on my way", readEnvelope(t, bobConn).Message.Message)

	aliceConn := srv.dial(t, alice)
	req.NoError(aliceConn.WriteJSON(map[string]string{"avariaId": avaria, "message": "hello"}))

	connected := readEnvelope(t, aliceConn)
	req.Equal(websocket.TypeConnected, connected.Type)
	req.Equal(avaria, connected.AvariaID)

	echoed := readEnvelope(t, aliceConn)
	req.Equal(websocket.TypeMessage, echoed.Type)
	req.Equal("hello", echoed.Message.Message)
	req.Equal(alice, echoed.Message.SenderID)
	req.NotEmpty(echoed.Message.ID)

	received := readEnvelope(t, bobConn)
	req.Equal(echoed.Message.ID, received.Message.ID)
	req.True(echoed.Message.SentAt.Equal(received.Message.SentAt))

	// Empty bodies only produce an error for the sender.
	req.NoError(aliceConn.WriteJSON(map[string]string{"avariaId": avaria, "message": ""}))
	failure := readEnvelope(t, aliceConn)
	req.Equal(websocket.TypeError, failure.Type)
	req.Equal(websocket.DescInvalidFormat, failure.Error)
	assertNoEnvelope(t, bobConn)

	resp := srv.get(t, "/api/chat/history/"+avaria, alice)
	req.Equal(http.StatusOK, resp.StatusCode)
	var history []models.ChatMessage
	req.NoError(json.NewDecoder(resp.Body).Decode(&history))
	req.Len(history, 2)
	req.Equal("on my way", history[0].Message)
	req.Equal("hello", history[1].Message)
}

func TestChatSocket_DisconnectUnsubscribes(t *testing.T) {
	srv := newTestServer(t)
	avaria := uuid.NewString()
	alice := uuid.NewString()

	conn := srv.dial(t, alice)
	require.NoError(t, conn.WriteJSON(map[string]string{"avariaId": avaria, "message": "bye soon"}))
	readEnvelope(t, conn)
	readEnvelope(t, conn)
	require.True(t, srv.registry.IsSubscribed(avaria, alice))

	require.NoError(t, conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return !srv.registry.IsSubscribed(avaria, alice) }, 2*time.Second, 10*time.Millisecond)
}

func TestChatSocket_ShutdownClosesConnections(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, uuid.NewString())

	srv.cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, gorilla.IsCloseError(err, gorilla.CloseGoingAway), "got %v", err)
}

func TestChatSocket_RequiresToken(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + ChatSocketPath

	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRESTEndpoints(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	avaria := uuid.NewString()

	req.Equal(http.StatusOK, srv.get(t, "/api/health", "").StatusCode)
	req.Equal(http.StatusUnauthorized, srv.get(t, "/api/status", "").StatusCode)
	req.Equal(http.StatusBadRequest, srv.get(t, "/api/chat/history/not-an-id", alice).StatusCode)
	req.Equal(http.StatusNotFound, srv.get(t, "/api/chat/messages/"+uuid.NewString()+"/receipts", alice).StatusCode)

	conn := srv.dial(t, alice)
	req.NoError(conn.WriteJSON(map[string]string{"avariaId": avaria, "message": "pump is leaking"}))
	readEnvelope(t, conn)
	msg := readEnvelope(t, conn).Message

	status := srv.get(t, "/api/status", alice)
	var body struct {
		Chat websocket.RegistryStats `json:"chat"`
	}
	req.NoError(json.NewDecoder(status.Body).Decode(&body))
	req.Equal(websocket.RegistryStats{Conversations: 1, Connections: 1}, body.Chat)

	markReq, err := http.NewRequest(http.MethodPost, srv.URL+"/api/chat/messages/"+msg.ID+"/read", nil)
	req.NoError(err)
	markReq.Header.Set("Authorization", "Bearer "+srv.token(t, bob))
	markResp, err := http.DefaultClient.Do(markReq)
	req.NoError(err)
	defer markResp.Body.Close()
	req.Equal(http.StatusCreated, markResp.StatusCode)

	receiptsResp := srv.get(t, "/api/chat/messages/"+msg.ID+"/receipts", alice)
	var receipts []models.ReadReceipt
	req.NoError(json.NewDecoder(receiptsResp.Body).Decode(&receipts))
	req.Len(receipts, 1)
	req.Equal(bob, receipts[0].UserID)
}
