// Package rbac gates administrative routes.
package rbac

import (
	"net/http"

	"election-voting/auth/internal/platform/httpx"
	"election-voting/auth/internal/server/middleware"
)

// RequireAdmin ensures the caller is authenticated and carries the admin flag.
// Mount it after Authenticator.Require. Returns 401 without an identity and 403 for non-admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.IdentityFrom(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "missing or invalid authorization")
			return
		}
		if !id.IsAdmin {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
