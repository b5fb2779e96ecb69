package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"election-voting/auth/internal/platform/httpx"
	"election-voting/auth/internal/server/middleware"
)

// Key returns the limiter key for r: the authenticated voter when the access-token
// middleware ran first, otherwise the client ip.
func Key(r *http.Request) string {
	if voterID, ok := middleware.VoterID(r.Context()); ok {
		return "voter:" + voterID
	}
	return "ip:" + middleware.ClientIP(r)
}

// RejectHook is called for every request the limiter turns away.
type RejectHook func(r *http.Request, key string)

// Middleware rejects requests over budget with 429 and a Retry-After header.
// Limiter errors are logged and the request is let through.
func Middleware(l Limiter, logger *zap.Logger, hooks ...RejectHook) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := Key(r)
			res, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("ratelimit: limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				logger.Info("ratelimit: request rejected", zap.String("key", key), zap.String("path", r.URL.Path))
				for _, hook := range hooks {
					hook(r, key)
				}
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
