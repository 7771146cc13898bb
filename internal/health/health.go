// Package health reports liveness and readiness over HTTP and the standard gRPC health protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"onego-security/backend/internal/server/httpx"
)

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the password policy evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkTimeout bounds a single readiness probe.
const checkTimeout = 2 * time.Second

// Checker runs the readiness checks. Nil dependencies are skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check returns the first failing dependency.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

// Routes registers GET /healthz (liveness) and GET /readyz (readiness).
func (c *Checker) Routes(r chi.Router, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Check(r.Context()); err != nil {
			log.Warn("readiness check failed", zap.Error(err))
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}

// GRPCServer publishes Checker results through grpc.health.v1.
type GRPCServer struct {
	*grpchealth.Server
	checker *Checker
	log     *zap.Logger
}

// NewGRPCServer returns a health server that starts out NOT_SERVING until the first check.
func NewGRPCServer(checker *Checker, log *zap.Logger) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &GRPCServer{Server: grpchealth.NewServer(), checker: checker, log: log}
	s.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Refresh runs the checks once and updates the overall serving status.
func (s *GRPCServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.checker.Check(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Warn("health: not serving", zap.Error(err))
		}
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.SetServingStatus("", status)
	return status
}

// Run refreshes the status every interval until ctx is done, then marks the server as shutting down.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
