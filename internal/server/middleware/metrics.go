package middleware

import (
	"net/http"
	"time"
)

// HTTPRecorder records one served request; *metrics.Collector implements it.
type HTTPRecorder interface {
	RecordHTTP(route, method string, status int, d time.Duration)
}

// Metrics records request count and latency by chi route pattern.
func Metrics(rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := wrap(w)
			next.ServeHTTP(sr, r)
			rec.RecordHTTP(routePattern(r), r.Method, sr.code(), time.Since(start))
		})
	}
}
