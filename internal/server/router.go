// Package server assembles the HTTP API router and the gRPC health server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	activityhandler "onego-security/backend/internal/activity/handler"
	devotphandler "onego-security/backend/internal/devotp/handler"
	"onego-security/backend/internal/health"
	identityhandler "onego-security/backend/internal/identity/handler"
	"onego-security/backend/internal/metrics"
	registrationhandler "onego-security/backend/internal/registration/handler"
	scanhandler "onego-security/backend/internal/scan/handler"
	sessionhandler "onego-security/backend/internal/session/handler"
	"onego-security/backend/internal/server/httpx"
	"onego-security/backend/internal/server/middleware"
	"onego-security/backend/internal/telemetry"
	userhandler "onego-security/backend/internal/user/handler"
)

// Deps holds everything the router mounts. Nil optional fields switch their feature off.
type Deps struct {
	Log *zap.Logger
	// CORSOrigin is the single allowed origin ("*" allows any).
	CORSOrigin  string
	RateLimiter *middleware.RateLimiter
	Tokens      middleware.TokenValidator
	Sessions    middleware.SessionStore

	// Metrics and Gatherer enable request metrics and GET /metrics.
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	// Emitter receives one http_request event per request.
	Emitter        telemetry.EventEmitter
	TracerProvider trace.TracerProvider
	Health         *health.Checker

	Registration *registrationhandler.Handler
	Identity     *identityhandler.Handler
	Users        *userhandler.Handler
	Activity     *activityhandler.Handler
	Scan         *scanhandler.Handler
	SessionList  *sessionhandler.Handler
	// DevOTP is set only in dev mode.
	DevOTP *devotphandler.Handler
}

// skipTelemetry lists routes that never produce request events.
var skipTelemetry = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// NewRouter builds the API router. Middleware order, outermost first: recovery, request id,
// client IP, tracing, metrics, access log, request events, CORS, security headers.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.Recover(log))
	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Tracing(d.TracerProvider))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}
	r.Use(middleware.AccessLog(log))
	if d.Emitter != nil {
		r.Use(middleware.Telemetry(d.Emitter, log, skipTelemetry))
	}
	r.Use(middleware.CORS(d.CORSOrigin))
	r.Use(middleware.SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	if d.Health != nil {
		d.Health.Routes(r, log)
	}
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}
		if d.Registration != nil {
			d.Registration.Routes(r)
		}
		if d.Identity != nil {
			d.Identity.Routes(r)
		}
		if d.DevOTP != nil {
			d.DevOTP.Routes(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.Tokens, d.Sessions, log))
		if d.Identity != nil {
			d.Identity.AuthedRoutes(r)
		}
		if d.Users != nil {
			d.Users.Routes(r)
		}
		if d.Activity != nil {
			d.Activity.Routes(r)
		}
		if d.Scan != nil {
			d.Scan.Routes(r)
		}
		if d.SessionList != nil {
			d.SessionList.Routes(r)
		}
	})

	return r
}
