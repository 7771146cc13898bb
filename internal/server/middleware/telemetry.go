package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"onego-security/backend/internal/activity"
	"onego-security/backend/internal/telemetry"
	"onego-security/backend/internal/telemetry/domain"
)

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	Route      string `json:"route"`
	Action     string `json:"action"`
	Resource   string `json:"resource"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
}

// Telemetry emits an http_request event after each request. Best-effort: emits run asynchronously
// and never fail the request. skipRoutes holds chi patterns to ignore (health, metrics).
func Telemetry(emitter telemetry.EventEmitter, log *zap.Logger, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := wrap(w)
			next.ServeHTTP(sr, r)
			if emitter == nil {
				return
			}
			route := routePattern(r)
			if skipRoutes[route] {
				return
			}
			ar := activity.ParseRoute(r.Method, route)
			meta, _ := json.Marshal(httpRequestMetadata{
				Route:      route,
				Action:     ar.Action,
				Resource:   ar.Resource,
				StatusCode: sr.code(),
				DurationMs: time.Since(start).Milliseconds(),
			})
			userID, _ := GetUserID(r.Context())
			sessionID, _ := GetSessionID(r.Context())
			telemetry.EmitAsync(log, emitter, &domain.Event{
				UserID:    userID,
				SessionID: sessionID,
				EventType: "http_request",
				Source:    "http_middleware",
				IP:        ClientIPFromContext(r.Context()),
				Metadata:  meta,
				CreatedAt: time.Now().UTC(),
			})
		})
	}
}
