// Package domain describes the device a refresh token is bound to.
package domain

import "strings"

// Binding is the (client IP, user-agent) pair a refresh record was issued to.
type Binding struct {
	IP        string
	UserAgent string
}

// Normalize trims surrounding whitespace. Comparison is otherwise exact.
func (b Binding) Normalize() Binding {
	return Binding{IP: strings.TrimSpace(b.IP), UserAgent: strings.TrimSpace(b.UserAgent)}
}

// SameIP reports whether other came from the same client IP.
func (b Binding) SameIP(other Binding) bool {
	return b.Normalize().IP == other.Normalize().IP
}

// SameUserAgent reports whether other presented the same user-agent string.
func (b Binding) SameUserAgent(other Binding) bool {
	return b.Normalize().UserAgent == other.Normalize().UserAgent
}
