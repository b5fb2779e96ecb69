package middleware

import (
	"errors"
	"net/http"
	"strings"

	"election-voting/auth/internal/platform/httpx"
	"election-voting/auth/internal/security"
)

const bearerPrefix = "bearer "

// AccessValidator verifies access tokens. Implemented by *security.TokenCodec.
type AccessValidator interface {
	ValidateAccess(token string) (*security.AccessClaims, error)
}

// Authenticator validates the access token from the access cookie (or an
// Authorization: Bearer header) and attaches the voter Identity to the request.
type Authenticator struct {
	tokens  AccessValidator
	version int
}

// NewAuthenticator returns an Authenticator that accepts only tokens stamped with currentVersion.
func NewAuthenticator(tokens AccessValidator, currentVersion int) *Authenticator {
	return &Authenticator{tokens: tokens, version: currentVersion}
}

// Require rejects requests without a valid access token with 401.
// Expired tokens get code token_expired so clients know to refresh.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.authenticate(r)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		case errors.Is(err, security.ErrTokenExpired):
			httpx.WriteError(w, http.StatusUnauthorized, "token_expired", "access token expired")
		default:
			httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "missing or invalid authorization")
		}
	})
}

// Optional attaches the identity when a valid access token is present and
// otherwise serves the request anonymously.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := a.authenticate(r); err == nil {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (Identity, error) {
	token := AccessToken(r)
	if token == "" {
		return Identity{}, security.ErrTokenInvalid
	}
	claims, err := a.tokens.ValidateAccess(token)
	if err != nil {
		return Identity{}, err
	}
	// Tokens minted before a version bump are dead even if unexpired.
	if claims.Version != a.version {
		return Identity{}, security.ErrTokenInvalid
	}
	return Identity{VoterID: claims.VoterID(), Email: claims.Email, IsAdmin: claims.IsAdmin}, nil
}

// AccessToken returns the access token from the access cookie or the Bearer header, or "".
func AccessToken(r *http.Request) string {
	if c, err := r.Cookie(security.AccessCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// RefreshToken returns the refresh cookie value, or "".
func RefreshToken(r *http.Request) string {
	c, err := r.Cookie(security.RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
