package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"onego-security/backend/internal/server/httpx"
	sessiondomain "onego-security/backend/internal/session/domain"
)

const bearerPrefix = "bearer "

// lastSeenInterval throttles last_seen_at writes to one per session per interval.
const lastSeenInterval = 5 * time.Minute

// TokenValidator validates a session token and returns its bound session and user.
type TokenValidator interface {
	Validate(token string) (sessionID, userID string, err error)
}

// SessionStore is the minimal session repository needed by Auth.
type SessionStore interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// Auth validates the Bearer token and its auth session, then sets user_id and session_id in context.
// Every failure (missing header, bad signature, expired or revoked session, store error) is the same 401.
func Auth(tokens TokenValidator, sessions SessionStore, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httpx.WriteUnauthorized(w)
				return
			}
			sessionID, userID, err := tokens.Validate(token)
			if err != nil {
				httpx.WriteUnauthorized(w)
				return
			}
			ctx := r.Context()
			sess, err := sessions.GetByID(ctx, sessionID)
			if err != nil {
				log.Error("auth: session lookup failed", zap.Error(err))
				httpx.WriteUnauthorized(w)
				return
			}
			now := time.Now().UTC()
			if sess == nil || sess.UserID != userID || !sess.Active(now) {
				httpx.WriteUnauthorized(w)
				return
			}
			if sess.LastSeenAt == nil || now.Sub(*sess.LastSeenAt) > lastSeenInterval {
				if err := sessions.UpdateLastSeen(ctx, sessionID, now); err != nil {
					log.Warn("auth: update last seen failed", zap.Error(err))
				}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, userID, sessionID)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
