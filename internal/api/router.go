// Package api provides HTTP routing for the chat backend.
package api

import (
	"context"
	"log/slog"

	"github.com/gorilla/mux"

	"github.com/avaria-tracker/backend/internal/api/handlers"
	"github.com/avaria-tracker/backend/internal/api/middleware"
	"github.com/avaria-tracker/backend/internal/auth"
	"github.com/avaria-tracker/backend/internal/chat"
	"github.com/avaria-tracker/backend/internal/storage"
	"github.com/avaria-tracker/backend/internal/websocket"
)

// ChatSocketPath is the WebSocket endpoint of the avaria chat.
const ChatSocketPath = "/ws/chat"

// Dependencies are the services the router wires into its handlers.
type Dependencies struct {
	// ServerContext is cancelled on shutdown, closing every chat socket.
	ServerContext context.Context
	DB            *storage.DB
	Chat          *chat.Service
	Registry      *websocket.Registry
	Tokens        *auth.TokenValidator
	Socket        websocket.Options
	Version       string
	Log           *slog.Logger
}

// NewRouter creates the HTTP router with all routes.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(deps.Log))
	r.Use(middleware.ErrorRecovery(deps.Log))

	r.HandleFunc("/api/health", handlers.HealthCheck(deps.DB)).Methods("GET")

	// Everything below requires a valid token.
	secured := r.NewRoute().Subrouter()
	secured.Use(auth.Middleware(deps.Tokens, ChatSocketPath, deps.Log))

	secured.HandleFunc(ChatSocketPath,
		handlers.ChatWebSocket(deps.ServerContext, deps.Registry, deps.Chat, deps.Socket, deps.Log),
	).Methods("GET")

	api := secured.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", handlers.Status(deps.Registry, deps.Version)).Methods("GET")

	api.HandleFunc("/chat/history/{avariaId}", handlers.GetChatHistory(deps.Chat, deps.Log)).Methods("GET")
	api.HandleFunc("/chat/GetChatHistory/{avariaId}", handlers.GetChatHistory(deps.Chat, deps.Log)).Methods("GET")
	api.HandleFunc("/chat/messages/{id}/read", handlers.MarkMessageRead(deps.Chat, deps.Log)).Methods("POST")
	api.HandleFunc("/chat/messages/{id}/receipts", handlers.ListReadReceipts(deps.Chat, deps.Log)).Methods("GET")

	return r
}
