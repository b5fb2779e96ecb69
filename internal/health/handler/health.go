// Package handler serves liveness and readiness over HTTP and keeps the gRPC
// health service in step with readiness.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"election-voting/auth/internal/platform/httpx"
)

// checkTimeout bounds each readiness probe.
const checkTimeout = 2 * time.Second

// Pinger is used for readiness (e.g. *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusSetter is implemented by *health.Server from google.golang.org/grpc/health.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Checker runs the readiness probes. Nil dependencies are skipped.
type Checker struct {
	db     Pinger
	policy PolicyChecker
	log    *zap.Logger
}

// NewChecker returns a Checker. Pass untyped nil for dependencies that are not configured.
func NewChecker(db Pinger, policy PolicyChecker, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{db: db, policy: policy, log: logger}
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Check runs every probe and returns per-dependency results and overall readiness.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	checks := map[string]string{}
	ready := true
	run := func(name string, probe func(context.Context) error) {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := probe(pctx); err != nil {
			c.log.Warn("health: probe failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unavailable"
			ready = false
			return
		}
		checks[name] = "ok"
	}
	if c.db != nil {
		run("database", c.db.Ping)
	}
	if c.policy != nil {
		run("policy", c.policy.HealthCheck)
	}
	return checks, ready
}

// Liveness handles GET /healthz. It only reports that the process serves HTTP.
func (c *Checker) Liveness(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// Readiness handles GET /readyz: 200 when every probe passes, 503 otherwise.
func (c *Checker) Readiness(w http.ResponseWriter, r *http.Request) {
	checks, ready := c.Check(r.Context())
	if !ready {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Checks: checks})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok", Checks: checks})
}

// Sync sets the overall ("") gRPC serving status from Check every interval until ctx ends.
func (c *Checker) Sync(ctx context.Context, s StatusSetter, interval time.Duration) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if _, ready := c.Check(ctx); !ready {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.SetServingStatus("", status)
	}
	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			update()
		}
	}
}
