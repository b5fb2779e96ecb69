// Package middleware holds the HTTP middleware of the auth service: access-token
// authentication, client metadata extraction, and request logging.
package middleware

import "context"

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// Identity is the authenticated voter attached to a request by the access-token middleware.
type Identity struct {
	VoterID string
	Email   string
	IsAdmin bool
}

// WithIdentity returns a context carrying id.
// Handlers read it back via IdentityFrom or VoterID.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity from context and true if set; otherwise zero, false.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.VoterID != ""
}

// VoterID returns the authenticated voter id from context and true if set; otherwise "", false.
func VoterID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.VoterID, ok
}
