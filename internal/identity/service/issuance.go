package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	devicedomain "election-voting/auth/internal/device/domain"
	refreshdomain "election-voting/auth/internal/refreshtoken/domain"
	refreshrepo "election-voting/auth/internal/refreshtoken/repository"
	"election-voting/auth/internal/security"
	voterdomain "election-voting/auth/internal/voter/domain"
)

const instrumentationName = "election-voting/auth/internal/identity/service"

// Session is a freshly issued access/refresh pair. The handler turns it into cookies.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	// RecordID is the refresh record backing RefreshToken.
	RecordID string
	Voter    voterdomain.Profile
}

// SessionIssuer mints sessions. It is the only writer of new refresh records.
type SessionIssuer struct {
	tokens  *security.TokenCodec
	refresh refreshrepo.Repository
	version int
	now     func() time.Time
	tracer  trace.Tracer
}

// NewSessionIssuer returns a SessionIssuer stamping tokens with currentVersion.
func NewSessionIssuer(tokens *security.TokenCodec, refresh refreshrepo.Repository, currentVersion int) *SessionIssuer {
	return &SessionIssuer{
		tokens:  tokens,
		refresh: refresh,
		version: currentVersion,
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
	}
}

// Issue runs IssueIn in its own transaction. Nothing is persisted if any step fails.
func (i *SessionIssuer) Issue(ctx context.Context, v *voterdomain.Voter, meta RequestMeta) (*Session, error) {
	var sess *Session
	err := i.refresh.WithinTx(ctx, func(s refreshrepo.Store) error {
		var err error
		sess, err = i.IssueIn(ctx, s, v, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// IssueIn mints a session inside the open transaction s: it revokes the voter's
// live records for this device, inserts a record with a placeholder hash, mints
// the refresh token carrying the record id, and stores its hash. The caller owns
// the commit, so a refresh can retire the old record and issue the new one
// atomically.
func (i *SessionIssuer) IssueIn(ctx context.Context, s refreshrepo.Store, v *voterdomain.Voter, meta RequestMeta) (*Session, error) {
	ctx, span := i.tracer.Start(ctx, "SessionIssuer.Issue", trace.WithAttributes(attribute.String("voter.id", v.ID)))
	defer span.End()

	access, accessExp, err := i.tokens.IssueAccess(v.ID, v.Email, v.IsAdmin, i.version)
	if err != nil {
		span.SetStatus(codes.Error, "issue access token")
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	binding := devicedomain.Binding{IP: meta.IP, UserAgent: meta.UserAgent}.Normalize()
	now := i.now().UTC()
	if _, err := s.RevokeByDevice(ctx, v.ID, binding.IP, binding.UserAgent, now); err != nil {
		span.RecordError(err)
		return nil, err
	}
	rec := &refreshdomain.RefreshToken{
		ID:        uuid.New().String(),
		VoterID:   v.ID,
		TokenHash: security.PendingTokenHash,
		IPAddress: binding.IP,
		UserAgent: binding.UserAgent,
		ExpiresAt: now.Add(i.tokens.RefreshTTL()),
		CreatedAt: now,
	}
	if err := s.Create(ctx, rec); err != nil {
		span.RecordError(err)
		return nil, err
	}
	refresh, refreshExp, err := i.tokens.IssueRefresh(rec.ID, v.ID, binding.IP, binding.UserAgent, i.version)
	if err != nil {
		span.SetStatus(codes.Error, "issue refresh token")
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.SetTokenHash(ctx, rec.ID, security.HashRefreshToken(refresh)); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("refresh.record_id", rec.ID))
	return &Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		RecordID:         rec.ID,
		Voter:            v.Profile(),
	}, nil
}
