package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/avaria-tracker/backend/internal/api/middleware"
	"github.com/avaria-tracker/backend/internal/auth"
	"github.com/avaria-tracker/backend/internal/chat"
)

// GetChatHistory returns the messages of an avaria, oldest first.
func GetChatHistory(svc *chat.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := svc.History(r.Context(), mux.Vars(r)["avariaId"])
		if err != nil {
			writeChatError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

// MarkMessageRead records a read receipt for the authenticated user.
func MarkMessageRead(svc *chat.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.ParticipantFrom(r.Context())

		receipt, err := svc.MarkRead(r.Context(), mux.Vars(r)["id"], userID)
		if err != nil {
			writeChatError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}

// ListReadReceipts returns who has read a message.
func ListReadReceipts(svc *chat.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receipts, err := svc.Receipts(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeChatError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, receipts)
	}
}

func writeChatError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	case errors.Is(err, chat.ErrMessageNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Message not found")
	default:
		log.Error("Chat request failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to access chat messages")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
