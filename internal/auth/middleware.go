package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/avaria-tracker/backend/internal/api/middleware"
)

type contextKey string

const participantKey contextKey = "participant_id"

// Middleware authenticates requests with a bearer token. On socketPath the
// token may also be passed in the access_token query parameter, since
// browsers cannot set headers on WebSocket handshakes.
func Middleware(v *TokenValidator, socketPath string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" && r.URL.Path == socketPath {
				token = r.URL.Query().Get("access_token")
			}

			claims, err := v.Validate(token)
			if err != nil {
				log.Debug("Rejected request", "path", r.URL.Path, "error", err)
				middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithParticipant(r.Context(), claims.UserID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// WithParticipant returns a copy of ctx carrying the participant id.
func WithParticipant(ctx context.Context, participantID string) context.Context {
	return context.WithValue(ctx, participantKey, participantID)
}

// ParticipantFrom returns the participant id stored by Middleware.
func ParticipantFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(participantKey).(string)
	return id, ok && id != ""
}
