package security

import "time"

// Test secrets for unit tests only. Do not use in production.
const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
)

// NewTestTokenCodec returns a TokenCodec with fixed test secrets, a 10m access TTL,
// a 7d refresh TTL and a 5m challenge TTL. now may be nil.
// For unit tests only. Callers must not use in production.
func NewTestTokenCodec(now func() time.Time) *TokenCodec {
	c, err := NewTokenCodec(TokenConfig{
		AccessSecret:  []byte(testAccessSecret),
		RefreshSecret: []byte(testRefreshSecret),
		Issuer:        "test-issuer",
		Audience:      "test-audience",
		AccessTTL:     10 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		ChallengeTTL:  5 * time.Minute,
		Now:           now,
	})
	if err != nil {
		panic(err)
	}
	return c
}
