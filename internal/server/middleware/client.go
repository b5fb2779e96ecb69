package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the client address of r without the port. Run chi's
// middleware.RealIP first so proxy headers are already folded into RemoteAddr.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// UserAgent returns the raw User-Agent header. It is compared byte for byte
// against the one captured at issuance, so it is not normalised here.
func UserAgent(r *http.Request) string {
	return r.UserAgent()
}
