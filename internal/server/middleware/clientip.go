package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

const maxUserAgent = 256

// RealIP resolves the client IP and user agent once per request and stores them in the context.
// It also prepares the context so access logging and telemetry can report the user authenticated
// further down the chain.
func RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientIP(r.Context(), ClientIP(r))
		if ua := r.UserAgent(); ua != "" {
			if len(ua) > maxUserAgent {
				ua = ua[:maxUserAgent]
			}
			ctx = context.WithValue(ctx, userAgentKey, ua)
		}
		next.ServeHTTP(w, r.WithContext(withRequestInfo(ctx)))
	})
}

// ClientIP returns the client IP from X-Forwarded-For (first hop), X-Real-IP or RemoteAddr, or "unknown".
func ClientIP(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		if s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(r.Header.Get("X-Real-IP")); s != "" {
		return s
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
