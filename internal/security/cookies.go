package security

import (
	"net/http"
	"time"
)

// Cookie names carrying the access and refresh tokens.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// CookiePolicy builds the auth cookies. Both are HttpOnly and SameSite=Strict;
// Secure is set only in production so local HTTP development keeps working.
type CookiePolicy struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewCookiePolicy returns the cookie policy for the given environment.
func NewCookiePolicy(production bool, accessTTL, refreshTTL time.Duration) CookiePolicy {
	return CookiePolicy{Secure: production, AccessTTL: accessTTL, RefreshTTL: refreshTTL}
}

// AccessCookie returns the cookie carrying an access token.
func (p CookiePolicy) AccessCookie(token string) *http.Cookie {
	return p.cookie(AccessCookieName, token, p.AccessTTL)
}

// RefreshCookie returns the cookie carrying a refresh token.
func (p CookiePolicy) RefreshCookie(token string) *http.Cookie {
	return p.cookie(RefreshCookieName, token, p.RefreshTTL)
}

// SetSession writes both auth cookies.
func (p CookiePolicy) SetSession(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, p.AccessCookie(accessToken))
	http.SetCookie(w, p.RefreshCookie(refreshToken))
}

// Clear expires both auth cookies with the same attributes they were set with.
func (p CookiePolicy) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		c := p.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (p CookiePolicy) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
