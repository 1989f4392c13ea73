package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/avaria-tracker/backend/internal/api/middleware"
	"github.com/avaria-tracker/backend/internal/auth"
	ws "github.com/avaria-tracker/backend/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The SPA is served from another origin; the token is the gate.
		return true
	},
}

// ChatWebSocket upgrades authenticated requests and runs the chat protocol
// on the connection until it ends. Cancelling serverCtx closes it.
func ChatWebSocket(
	serverCtx context.Context,
	registry *ws.Registry,
	store ws.MessageStore,
	opts ws.Options,
	log *slog.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID, ok := auth.ParticipantFrom(r.Context())
		if !ok {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
			return
		}

		// Upgrade has already answered the request when it fails.
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("WebSocket upgrade error", "participant_id", participantID, "error", err)
			return
		}

		log.Info("WebSocket connection established", "participant_id", participantID)
		handler := ws.NewHandler(participantID, conn, registry, store, log, opts)
		if err := handler.Run(serverCtx); err != nil {
			log.Debug("WebSocket connection ended with error", "participant_id", participantID, "error", err)
		}
	}
}
