package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"election-voting/auth/internal/audit"
	auditdomain "election-voting/auth/internal/audit/domain"
	"election-voting/auth/internal/mfa"
	"election-voting/auth/internal/security"
	voterdomain "election-voting/auth/internal/voter/domain"
)

// CompleteChallenge finishes a 2FA login: the challenge token proves the password
// step, code proves possession of the enrolled secret. Every failure to prove the
// second factor is reported as ErrInvalidOTP and no session record is created.
func (s *AuthService) CompleteChallenge(ctx context.Context, challengeToken, code string, meta RequestMeta) (*Session, error) {
	claims, err := s.tokens.ValidateChallenge(challengeToken)
	if err != nil {
		s.audit.Log(ctx, audit.Entry{
			Action: auditdomain.ActionTwoFactorFailure, IP: meta.IP, UserAgent: meta.UserAgent,
			Metadata: map[string]any{"reason": challengeFailureReason(err)},
		})
		return nil, ErrInvalidOTP
	}
	voterID := claims.VoterID()
	v, err := s.voters.GetByID(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if v == nil || !v.TwoFactorEnabled || v.TOTPSecret == nil {
		s.failTwoFactor(ctx, voterID, "not-enrolled", meta)
		return nil, ErrInvalidOTP
	}
	secret, err := s.openSecret(v)
	if err != nil {
		return nil, err
	}
	if !s.totp.Verify(secret, code) {
		s.failTwoFactor(ctx, voterID, "bad-code", meta)
		return nil, ErrInvalidOTP
	}
	sess, err := s.issuer.Issue(ctx, v, meta)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Entry{
		VoterID: voterID, Action: auditdomain.ActionTwoFactorSuccess, IP: meta.IP, UserAgent: meta.UserAgent,
		Metadata: map[string]any{"record_id": sess.RecordID},
	})
	return sess, nil
}

// SetupTwoFactor generates a secret and provisioning QR code. Nothing is stored
// until ConfirmTwoFactor succeeds.
func (s *AuthService) SetupTwoFactor(ctx context.Context, voterID string, meta RequestMeta) (*mfa.Enrollment, error) {
	v, err := s.voters.GetByID(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVoterNotFound
	}
	if v.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	enrollment, err := s.totp.Enroll(v.Email)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Entry{VoterID: voterID, Action: auditdomain.ActionTwoFactorSetup, IP: meta.IP, UserAgent: meta.UserAgent})
	return enrollment, nil
}

// ConfirmTwoFactor enables 2FA once code is valid for secret. The secret is sealed
// before it is stored. A wrong code stores nothing.
func (s *AuthService) ConfirmTwoFactor(ctx context.Context, voterID, secret, code string, meta RequestMeta) error {
	secret = strings.TrimSpace(secret)
	if secret == "" || strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: secret and code are required", ErrInvalidArgument)
	}
	v, err := s.voters.GetByID(ctx, voterID)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVoterNotFound
	}
	if v.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if !s.totp.Verify(secret, code) {
		s.failTwoFactor(ctx, voterID, "enrollment-bad-code", meta)
		return ErrInvalidOTP
	}
	sealed, err := s.secrets.Seal([]byte(secret), voterID)
	if err != nil {
		return fmt.Errorf("seal totp secret: %w", err)
	}
	if err := s.voters.SetTwoFactor(ctx, voterID, &sealed, true, s.now().UTC()); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Entry{VoterID: voterID, Action: auditdomain.ActionTwoFactorEnabled, IP: meta.IP, UserAgent: meta.UserAgent})
	return nil
}

// DisableTwoFactor clears the stored secret and flag. Existing sessions stay valid.
func (s *AuthService) DisableTwoFactor(ctx context.Context, voterID string, meta RequestMeta) error {
	v, err := s.voters.GetByID(ctx, voterID)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVoterNotFound
	}
	if !v.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if err := s.voters.SetTwoFactor(ctx, voterID, nil, false, s.now().UTC()); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Entry{VoterID: voterID, Action: auditdomain.ActionTwoFactorDisabled, IP: meta.IP, UserAgent: meta.UserAgent})
	return nil
}

func (s *AuthService) openSecret(v *voterdomain.Voter) (string, error) {
	plain, err := s.secrets.Open(*v.TOTPSecret, v.ID)
	if err != nil {
		return "", fmt.Errorf("open totp secret for voter %s: %w", v.ID, err)
	}
	return string(plain), nil
}

func (s *AuthService) failTwoFactor(ctx context.Context, voterID, reason string, meta RequestMeta) {
	s.audit.Log(ctx, audit.Entry{
		VoterID: voterID, Action: auditdomain.ActionTwoFactorFailure, IP: meta.IP, UserAgent: meta.UserAgent,
		Metadata: map[string]any{"reason": reason},
	})
}

func challengeFailureReason(err error) string {
	if errors.Is(err, security.ErrTokenExpired) {
		return "challenge-expired"
	}
	return "challenge-invalid"
}
