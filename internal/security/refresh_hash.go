package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// PendingTokenHash is stored on a refresh record between insert and the moment the
// signed token (which embeds the record id) is hashed. It can never equal a SHA-256 hex digest.
const PendingTokenHash = "pending"

const retiredPrefix = "rotated:"

// HashRefreshToken returns a SHA-256 hash of the refresh token string, hex-encoded.
// Only this value is persisted; the raw token lives in the client cookie.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenHashEqual performs constant-time comparison of the provided token's hash
// with the stored hash. Returns true only if they match.
func RefreshTokenHashEqual(providedToken, storedHash string) bool {
	if providedToken == "" || storedHash == "" {
		return false
	}
	providedHash := HashRefreshToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}

// RetiredTokenHash returns a unique marker written over a record's hash once its token
// has been rotated. Any later presentation of the old token fails the hash comparison.
func RetiredTokenHash() string {
	return retiredPrefix + uuid.NewString()
}

// IsRetiredTokenHash reports whether storedHash was written by RetiredTokenHash.
func IsRetiredTokenHash(storedHash string) bool {
	return strings.HasPrefix(storedHash, retiredPrefix)
}
