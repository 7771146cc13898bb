// Package middleware holds the HTTP middleware chain: identity, client IP, auth, logging,
// recovery, CORS, rate limiting, metrics, tracing and telemetry.
package middleware

import (
	"context"
	"sync"
)

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	sessionIDKey = contextKey{"session_id"}
	clientIPKey  = contextKey{"client_ip"}
	userAgentKey = contextKey{"user_agent"}
	infoKey      = contextKey{"request_info"}
)

// requestInfo lets middleware running outside Auth see the identity Auth resolved further in.
type requestInfo struct {
	mu        sync.Mutex
	userID    string
	sessionID string
}

func withRequestInfo(ctx context.Context) context.Context {
	if _, ok := ctx.Value(infoKey).(*requestInfo); ok {
		return ctx
	}
	return context.WithValue(ctx, infoKey, &requestInfo{})
}

// WithIdentity returns a context with user_id and session_id set.
// Handlers read them back with GetUserID and GetSessionID.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	if info, ok := ctx.Value(infoKey).(*requestInfo); ok {
		info.mu.Lock()
		info.userID, info.sessionID = userID, sessionID
		info.mu.Unlock()
	}
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		return v, true
	}
	if info, ok := ctx.Value(infoKey).(*requestInfo); ok {
		info.mu.Lock()
		defer info.mu.Unlock()
		return info.userID, info.userID != ""
	}
	return "", false
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	if info, ok := ctx.Value(infoKey).(*requestInfo); ok {
		info.mu.Lock()
		defer info.mu.Unlock()
		return info.sessionID, info.sessionID != ""
	}
	return "", false
}

// WithClientIP stores the resolved client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the IP stored by RealIP, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// UserAgentFromContext returns the User-Agent captured by RealIP, or "".
func UserAgentFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey).(string)
	return v
}
