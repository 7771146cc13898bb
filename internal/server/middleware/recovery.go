package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"onego-security/backend/internal/server/httpx"
)

// Recover turns a panic into the generic 500 body so the process keeps serving.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					httpx.WriteInternal(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
