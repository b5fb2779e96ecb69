package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"election-voting/auth/internal/audit"
	auditdomain "election-voting/auth/internal/audit/domain"
	"election-voting/auth/internal/mfa"
	refreshdomain "election-voting/auth/internal/refreshtoken/domain"
	refreshrepo "election-voting/auth/internal/refreshtoken/repository"
	"election-voting/auth/internal/security"
	voterdomain "election-voting/auth/internal/voter/domain"
	voterrepo "election-voting/auth/internal/voter/repository"
)

// Sentinel errors for auth service; handler maps them to HTTP status and error code.
// Codec failures surface as security.ErrTokenInvalid and security.ErrTokenExpired.
var (
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrEmailAlreadyRegistered  = errors.New("email already registered")
	ErrTokenReuse              = errors.New("refresh token reuse detected; all sessions revoked")
	ErrDeviceMismatch          = errors.New("refresh token presented from a different device; all sessions revoked")
	ErrVersionMismatch         = errors.New("refresh token version is no longer valid; all sessions revoked")
	ErrTokenRevoked            = errors.New("refresh token revoked or expired")
	ErrInvalidOTP              = errors.New("invalid one-time password")
	ErrVoterNotFound           = errors.New("voter not found")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication not enabled")
)

// IsSessionKilled reports whether err ended the voter's sessions; the handler clears cookies for these.
func IsSessionKilled(err error) bool {
	return errors.Is(err, ErrTokenReuse) ||
		errors.Is(err, ErrDeviceMismatch) ||
		errors.Is(err, ErrVersionMismatch) ||
		errors.Is(err, ErrTokenRevoked)
}

// RequestMeta is the client metadata a session is bound to.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// VoterRepo is the voter store needed by the auth service.
type VoterRepo interface {
	GetByID(ctx context.Context, id string) (*voterdomain.Voter, error)
	GetByEmail(ctx context.Context, email string) (*voterdomain.Voter, error)
	Create(ctx context.Context, v *voterdomain.Voter) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, at time.Time) error
	SetTwoFactor(ctx context.Context, id string, sealedSecret *string, enabled bool, at time.Time) error
}

// LoginResult is either a session or, for voters with 2FA, a challenge token.
type LoginResult struct {
	Session            *Session
	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

// RequiresTwoFactor reports whether the caller must complete the 2FA challenge.
func (r *LoginResult) RequiresTwoFactor() bool {
	return r.Session == nil && r.ChallengeToken != ""
}

// Deps holds the collaborators of AuthService.
type Deps struct {
	Voters   VoterRepo
	Refresh  refreshrepo.Repository
	Hasher   *security.Hasher
	Tokens   *security.TokenCodec
	TOTP     *mfa.TOTP
	Secrets  *security.SecretBox
	Audit    audit.AuditLogger
	Issuer   *SessionIssuer
	Validate *RefreshValidator
	// AcceptDelay is slept before a refresh token is validated and reissued.
	AcceptDelay time.Duration
	Logger      *zap.Logger
}

// AuthService implements registration, password and 2FA login, refresh, logout, and 2FA enrollment.
type AuthService struct {
	voters      VoterRepo
	refresh     refreshrepo.Repository
	hasher      *security.Hasher
	tokens      *security.TokenCodec
	totp        *mfa.TOTP
	secrets     *security.SecretBox
	audit       audit.AuditLogger
	issuer      *SessionIssuer
	validator   *RefreshValidator
	acceptDelay time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	s := &AuthService{
		voters:      d.Voters,
		refresh:     d.Refresh,
		hasher:      d.Hasher,
		tokens:      d.Tokens,
		totp:        d.TOTP,
		secrets:     d.Secrets,
		audit:       d.Audit,
		issuer:      d.Issuer,
		validator:   d.Validate,
		acceptDelay: d.AcceptDelay,
		log:         d.Logger,
		now:         time.Now,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Register creates a non-admin voter with the given email and password.
func (s *AuthService) Register(ctx context.Context, email, password string, meta RequestMeta) (*voterdomain.Profile, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.voters.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	v := &voterdomain.Voter{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := s.voters.Create(ctx, v); err != nil {
		if errors.Is(err, voterrepo.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	s.audit.Log(ctx, audit.Entry{VoterID: v.ID, Action: auditdomain.ActionRegister, IP: meta.IP, UserAgent: meta.UserAgent})
	p := v.Profile()
	return &p, nil
}

// Login checks email and password. Voters with 2FA get a challenge token and no session.
// Unknown email and wrong password fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	v, err := s.voters.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if v == nil {
		s.hasher.CompareDummy([]byte(password))
		s.audit.Log(ctx, audit.Entry{
			Action: auditdomain.ActionLoginFailure, IP: meta.IP, UserAgent: meta.UserAgent,
			Metadata: map[string]any{"reason": "unknown-email", "email": email},
		})
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(v.PasswordHash, []byte(password)); err != nil {
		s.audit.Log(ctx, audit.Entry{
			VoterID: v.ID, Action: auditdomain.ActionLoginFailure, IP: meta.IP, UserAgent: meta.UserAgent,
			Metadata: map[string]any{"reason": "bad-password"},
		})
		return nil, ErrInvalidCredentials
	}

	if v.TwoFactorEnabled {
		token, exp, err := s.tokens.IssueChallenge(v.ID)
		if err != nil {
			return nil, fmt.Errorf("issue challenge: %w", err)
		}
		s.audit.Log(ctx, audit.Entry{VoterID: v.ID, Action: auditdomain.ActionTwoFactorChallenge, IP: meta.IP, UserAgent: meta.UserAgent})
		return &LoginResult{ChallengeToken: token, ChallengeExpiresAt: exp}, nil
	}

	sess, err := s.issuer.Issue(ctx, v, meta)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Entry{
		VoterID: v.ID, Action: auditdomain.ActionLoginSuccess, IP: meta.IP, UserAgent: meta.UserAgent,
		Metadata: map[string]any{"record_id": sess.RecordID},
	})
	return &LoginResult{Session: sess}, nil
}

// Refresh exchanges a refresh token for a new session. The configured delay runs
// first; the state machine and the reissue then share one transaction, so a
// failed or cancelled issuance leaves the presented token usable. A token whose
// voter no longer exists is treated as revoked.
func (s *AuthService) Refresh(ctx context.Context, raw string, meta RequestMeta) (*Session, error) {
	if raw == "" {
		return nil, security.ErrTokenInvalid
	}
	claims, err := s.tokens.ValidateRefresh(raw)
	if err != nil {
		return nil, err
	}
	v, err := s.voters.GetByID(ctx, claims.VoterID())
	if err != nil {
		return nil, err
	}
	if v == nil {
		s.log.Warn("refresh: voter no longer exists", zap.String("voter_id", claims.VoterID()))
		return nil, ErrTokenRevoked
	}
	if err := sleepCtx(ctx, s.acceptDelay); err != nil {
		return nil, err
	}
	var sess *Session
	_, err = s.validator.Validate(ctx, claims, raw, meta, func(st refreshrepo.Store, rec *refreshdomain.RefreshToken) error {
		if rec.VoterID != v.ID {
			return ErrTokenRevoked
		}
		issued, err := s.issuer.IssueIn(ctx, st, v, meta)
		if err != nil {
			return err
		}
		sess = issued
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout revokes the record behind refreshRaw. When voterID is set (the caller also
// presented an access token) the refresh token must belong to that voter. Missing,
// invalid, or foreign tokens make Logout a no-op so it stays idempotent.
func (s *AuthService) Logout(ctx context.Context, voterID, refreshRaw string, meta RequestMeta) error {
	if refreshRaw == "" {
		return nil
	}
	claims, err := s.tokens.ValidateRefresh(refreshRaw)
	if err != nil {
		return nil
	}
	if voterID != "" && claims.VoterID() != voterID {
		s.log.Warn("logout: refresh token belongs to another voter",
			zap.String("voter_id", voterID), zap.String("token_voter_id", claims.VoterID()))
		return nil
	}
	revoked, err := s.refresh.Revoke(ctx, claims.RecordID(), s.now().UTC())
	if err != nil {
		return err
	}
	if revoked {
		s.audit.Log(ctx, audit.Entry{
			VoterID: claims.VoterID(), Action: auditdomain.ActionLogout, IP: meta.IP, UserAgent: meta.UserAgent,
			Metadata: map[string]any{"record_id": claims.RecordID()},
		})
	}
	return nil
}

// LogoutAll revokes every refresh record of the voter named by refreshRaw.
func (s *AuthService) LogoutAll(ctx context.Context, refreshRaw string, meta RequestMeta) (int64, error) {
	if refreshRaw == "" {
		return 0, security.ErrTokenInvalid
	}
	claims, err := s.tokens.ValidateRefresh(refreshRaw)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.refresh.WithinTx(ctx, func(st refreshrepo.Store) error {
		var err error
		n, err = st.RevokeAllByVoter(ctx, claims.VoterID(), s.now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.audit.Log(ctx, audit.Entry{
		VoterID: claims.VoterID(), Action: auditdomain.ActionLogoutAll, IP: meta.IP, UserAgent: meta.UserAgent,
		Metadata: map[string]any{"revoked": n},
	})
	return n, nil
}

// ChangePassword replaces the voter's password after checking the current one and
// revokes every refresh record so other devices must sign in again.
func (s *AuthService) ChangePassword(ctx context.Context, voterID, current, next string, meta RequestMeta) error {
	v, err := s.voters.GetByID(ctx, voterID)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVoterNotFound
	}
	if err := s.hasher.Compare(v.PasswordHash, []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(next))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	// Sessions go first: if the update then fails the voter signs in again with
	// the old password, but no session outlives a changed one.
	now := s.now().UTC()
	var n int64
	err = s.refresh.WithinTx(ctx, func(st refreshrepo.Store) error {
		var err error
		n, err = st.RevokeAllByVoter(ctx, voterID, now)
		return err
	})
	if err != nil {
		return err
	}
	if err := s.voters.UpdatePasswordHash(ctx, voterID, hashed, now); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Entry{
		VoterID: voterID, Action: auditdomain.ActionPasswordChanged, IP: meta.IP, UserAgent: meta.UserAgent,
		Metadata: map[string]any{"revoked": n},
	})
	return nil
}

// Me returns the profile of the authenticated voter.
func (s *AuthService) Me(ctx context.Context, voterID string) (*voterdomain.Profile, error) {
	v, err := s.voters.GetByID(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVoterNotFound
	}
	p := v.Profile()
	return &p, nil
}

// RevokeVoterSessions revokes every refresh record of voterID on behalf of an administrator.
func (s *AuthService) RevokeVoterSessions(ctx context.Context, adminID, voterID string, meta RequestMeta) (int64, error) {
	v, err := s.voters.GetByID(ctx, voterID)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, ErrVoterNotFound
	}
	var n int64
	err = s.refresh.WithinTx(ctx, func(st refreshrepo.Store) error {
		var err error
		n, err = st.RevokeAllByVoter(ctx, voterID, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.audit.Log(ctx, audit.Entry{
		VoterID: voterID, Action: auditdomain.ActionSessionsRevoked, IP: meta.IP, UserAgent: meta.UserAgent,
		Metadata: map[string]any{"revoked": n, "admin_id": adminID},
	})
	return n, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidArgument)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrInvalidArgument)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidArgument)
	}
	if len(password) > 72 {
		// bcrypt ignores everything past 72 bytes.
		return fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidArgument)
	}
	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrInvalidArgument)
	}
	if !hasLower {
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrInvalidArgument)
	}
	if !hasNumber {
		return fmt.Errorf("%w: password must contain at least one number", ErrInvalidArgument)
	}
	return nil
}
