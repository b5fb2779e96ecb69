// Package server assembles the HTTP API router and the gRPC health server.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"election-voting/auth/internal/audit"
	auditdomain "election-voting/auth/internal/audit/domain"
	audithandler "election-voting/auth/internal/audit/handler"
	healthhandler "election-voting/auth/internal/health/handler"
	identityhandler "election-voting/auth/internal/identity/handler"
	"election-voting/auth/internal/platform/httpx"
	"election-voting/auth/internal/platform/rbac"
	"election-voting/auth/internal/ratelimit"
	"election-voting/auth/internal/server/middleware"
)

// requestTimeout covers the refresh accept delay with room to spare.
const requestTimeout = 30 * time.Second

// HTTPDeps holds the handlers and middleware the router is built from.
type HTTPDeps struct {
	Auth   *identityhandler.Handler
	Audit  *audithandler.Handler
	Health *healthhandler.Checker
	Authn  *middleware.Authenticator
	// Limiter guards login, password change and every 2FA step. Nil disables limiting.
	Limiter ratelimit.Limiter
	// AuditLogger records rejected attempts as RATE_LIMITED. May be nil.
	AuditLogger    audit.AuditLogger
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler returns the API router. Routes are served at the root and again
// under /api for the browser client; health probes live at the root only.
func NewHTTPHandler(d HTTPDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auditLogger := d.AuditLogger
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}

	var sensitive func(http.Handler) http.Handler
	if d.Limiter != nil {
		sensitive = ratelimit.Middleware(d.Limiter, logger.Named("ratelimit"), func(r *http.Request, key string) {
			voterID, _ := middleware.VoterID(r.Context())
			auditLogger.Log(r.Context(), audit.Entry{
				VoterID:   voterID,
				Action:    auditdomain.ActionRateLimited,
				IP:        middleware.ClientIP(r),
				UserAgent: middleware.UserAgent(r),
				Metadata:  map[string]any{"path": r.URL.Path, "key": key},
			})
		})
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.Health != nil {
		r.Get("/healthz", d.Health.Liveness)
		r.Get("/readyz", d.Health.Readiness)
	}

	mount := func(r chi.Router) {
		r.Mount("/auth", d.Auth.Routes(d.Authn, sensitive))
		r.Route("/admin", func(r chi.Router) {
			r.Use(d.Authn.Require, rbac.RequireAdmin)
			if d.Audit != nil {
				r.Get("/audit-logs", d.Audit.List)
			}
			r.Post("/voters/{voterID}/revoke-sessions", d.Auth.RevokeSessions)
		})
	}
	mount(r)
	r.Route("/api", mount)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
