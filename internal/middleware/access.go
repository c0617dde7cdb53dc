package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"airemaster/internal/domain"
)

// AccessCodeHeader carries the caller's access code. The "code" query
// parameter is accepted as a fallback for links opened in a browser.
const AccessCodeHeader = "X-Access-Code"

type userKey string

const userIDKey userKey = "user_id"

// UserResolver resolves access codes to users.
type UserResolver interface {
	FindByAccessCode(ctx context.Context, code string) (*domain.User, error)
}

// AccessCode rejects requests without a known access code and stores the
// resolved user id in the request context.
func AccessCode(users UserResolver, l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := strings.TrimSpace(r.Header.Get(AccessCodeHeader))
			if code == "" {
				code = strings.TrimSpace(r.URL.Query().Get("code"))
			}
			if code == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing access code")
				return
			}
			user, err := users.FindByAccessCode(r.Context(), code)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access code")
					return
				}
				l.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("resolve access code")
				writeError(w, http.StatusInternalServerError, "internal", "failed to resolve access code")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), user.ID)))
		})
	}
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
