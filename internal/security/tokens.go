package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid is returned when a token is malformed, carries a bad signature,
	// or is not of the class the caller asked for.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when the signature is valid but exp is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// TokenUse discriminates the three token classes. Every validator checks it before
// trusting any other claim.
type TokenUse string

const (
	TokenUseAccess    TokenUse = "access"
	TokenUseRefresh   TokenUse = "refresh"
	TokenUseChallenge TokenUse = "challenge"
)

// ChallengeStep is the step value carried by a 2FA challenge token.
const ChallengeStep = "2fa"

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Use     TokenUse `json:"token_use"`
	Email   string   `json:"email"`
	IsAdmin bool     `json:"is_admin"`
	Version int      `json:"ver"`
}

// VoterID returns the subject of the access token.
func (c *AccessClaims) VoterID() string { return c.Subject }

// RefreshClaims holds JWT claims for the refresh token. The jti is the refresh record id.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Use       TokenUse `json:"token_use"`
	IP        string   `json:"ip"`
	UserAgent string   `json:"ua"`
	Version   int      `json:"ver"`
}

// RecordID returns the id of the refresh record this token was minted for.
func (c *RefreshClaims) RecordID() string { return c.ID }

// VoterID returns the subject of the refresh token.
func (c *RefreshClaims) VoterID() string { return c.Subject }

// ChallengeClaims holds JWT claims for the short-lived 2FA challenge token.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Use  TokenUse `json:"token_use"`
	Step string   `json:"step"`
}

// VoterID returns the voter who passed the password step.
func (c *ChallengeClaims) VoterID() string { return c.Subject }

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ChallengeTTL  time.Duration
	// Now overrides the clock used for iat/exp; nil means time.Now.
	Now func() time.Time
}

// TokenCodec mints and verifies the HS256 access, refresh and challenge tokens.
// Access and refresh tokens are signed with independent secrets. Challenge tokens
// share the access secret and are told apart by token_use and step.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	challengeTTL  time.Duration
	now           func() time.Time
}

// NewTokenCodec validates cfg and returns a TokenCodec.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("security: access and refresh secrets are required")
	}
	if hmac.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("security: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ChallengeTTL <= 0 {
		return nil, errors.New("security: token TTLs must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		challengeTTL:  cfg.ChallengeTTL,
		now:           now,
	}, nil
}

// AccessTTL returns the access token lifetime (also the access cookie max age).
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the refresh token lifetime (also the refresh cookie max age).
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess mints an access token for the voter stamped with the given token version.
func (c *TokenCodec) IssueAccess(voterID, email string, isAdmin bool, version int) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC()
	expiresAt = now.Add(c.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: c.registered(jti, voterID, now, expiresAt),
		Use:              TokenUseAccess,
		Email:            email,
		IsAdmin:          isAdmin,
		Version:          version,
	}
	token, err = sign(claims, c.accessSecret)
	return token, expiresAt, err
}

// IssueRefresh mints a refresh token bound to a refresh record and device.
// The record id travels as jti.
func (c *TokenCodec) IssueRefresh(recordID, voterID, ip, userAgent string, version int) (token string, expiresAt time.Time, err error) {
	if recordID == "" || voterID == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	now := c.now().UTC()
	expiresAt = now.Add(c.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: c.registered(recordID, voterID, now, expiresAt),
		Use:              TokenUseRefresh,
		IP:               ip,
		UserAgent:        userAgent,
		Version:          version,
	}
	token, err = sign(claims, c.refreshSecret)
	return token, expiresAt, err
}

// IssueChallenge mints the token handed out after a correct password for a voter
// with 2FA enabled. It proves the first factor only.
func (c *TokenCodec) IssueChallenge(voterID string) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC()
	expiresAt = now.Add(c.challengeTTL)
	claims := ChallengeClaims{
		RegisteredClaims: c.registered(jti, voterID, now, expiresAt),
		Use:              TokenUseChallenge,
		Step:             ChallengeStep,
	}
	token, err = sign(claims, c.accessSecret)
	return token, expiresAt, err
}

// ValidateAccess verifies an access token. Returns ErrTokenExpired or ErrTokenInvalid on failure.
func (c *TokenCodec) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	err := c.parse(tokenString, claims, c.accessSecret)
	if claims.Use != TokenUseAccess || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateRefresh verifies a refresh token. Returns ErrTokenExpired or ErrTokenInvalid on failure.
func (c *TokenCodec) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	err := c.parse(tokenString, claims, c.refreshSecret)
	if claims.Use != TokenUseRefresh || claims.ID == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateChallenge verifies a 2FA challenge token including its step discriminator.
func (c *TokenCodec) ValidateChallenge(tokenString string) (*ChallengeClaims, error) {
	claims := &ChallengeClaims{}
	err := c.parse(tokenString, claims, c.accessSecret)
	if claims.Use != TokenUseChallenge || claims.Step != ChallengeStep || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *TokenCodec) registered(id, subject string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        id,
		Subject:   subject,
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{c.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

// parse verifies signature and registered claims. Signature is checked before
// claims, so ErrTokenExpired always means the token was genuinely ours.
func (c *TokenCodec) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	if tokenString == "" {
		return ErrTokenInvalid
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) &&
		!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
		!errors.Is(err, jwt.ErrTokenInvalidIssuer) &&
		!errors.Is(err, jwt.ErrTokenInvalidAudience) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

func sign(claims jwt.Claims, secret []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
