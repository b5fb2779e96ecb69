package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"election-voting/auth/internal/audit"
	auditdomain "election-voting/auth/internal/audit/domain"
	devicedomain "election-voting/auth/internal/device/domain"
	policyengine "election-voting/auth/internal/policy/engine"
	refreshdomain "election-voting/auth/internal/refreshtoken/domain"
	refreshrepo "election-voting/auth/internal/refreshtoken/repository"
	"election-voting/auth/internal/security"
)

// Outcome labels recorded on auth.refresh.outcomes and on the validation span.
const (
	OutcomeAccepted        = "accepted"
	OutcomeNotFound        = "not_found"
	OutcomeReuse           = "reuse"
	OutcomeRevoked         = "revoked"
	OutcomeExpired         = "expired"
	OutcomeIPMismatch      = "ip_mismatch"
	OutcomeUAMismatch      = "ua_mismatch"
	OutcomeVersionMismatch = "version_mismatch"
)

// AcceptFunc runs inside the validation transaction once a record has been
// accepted and retired. Returning an error rolls the acceptance back, so the
// presented token stays valid.
type AcceptFunc func(s refreshrepo.Store, rec *refreshdomain.RefreshToken) error

// rejection is a logical outcome of the state machine. It is returned as a value
// from the transaction so revocations made on the way commit.
type rejection struct {
	err       error
	outcome   string
	action    auditdomain.Action
	reason    string
	revokeAll bool
	revoked   int64
}

// RefreshValidator runs the refresh-token validation state machine. It is the only
// component that marks records used or revokes them on anomalies.
type RefreshValidator struct {
	refresh  refreshrepo.Repository
	policy   policyengine.BindingPolicy
	audit    audit.AuditLogger
	version  int
	now      func() time.Time
	log      *zap.Logger
	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// NewRefreshValidator returns a RefreshValidator accepting only tokens of currentVersion.
// A nil policy enforces the full device binding.
func NewRefreshValidator(refresh refreshrepo.Repository, policy policyengine.BindingPolicy, auditLogger audit.AuditLogger, currentVersion int, logger *zap.Logger) *RefreshValidator {
	if policy == nil {
		policy = policyengine.StaticPolicy(policyengine.StrictDecision)
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter("auth.refresh.outcomes",
		metric.WithDescription("Refresh attempts by validation outcome"))
	if err != nil {
		logger.Warn("refresh: outcome counter unavailable", zap.Error(err))
	}
	return &RefreshValidator{
		refresh:  refresh,
		policy:   policy,
		audit:    auditLogger,
		version:  currentVersion,
		now:      time.Now,
		log:      logger,
		tracer:   otel.Tracer(instrumentationName),
		outcomes: counter,
	}
}

// Validate checks, in order: record exists, hash matches, not revoked, not expired,
// IP matches, user-agent matches, version is current. Reuse, device, and version
// failures revoke every record of the voter before the error is returned. On
// success the record is marked used and its stored hash retired, so the same raw
// token can never pass again. A non-nil accept runs in the same transaction, so
// the retirement commits only together with whatever accept writes.
func (v *RefreshValidator) Validate(ctx context.Context, claims *security.RefreshClaims, raw string, meta RequestMeta, accept AcceptFunc) (*refreshdomain.RefreshToken, error) {
	ctx, span := v.tracer.Start(ctx, "RefreshValidator.Validate",
		trace.WithAttributes(attribute.String("refresh.record_id", claims.RecordID())))
	defer span.End()

	presented := devicedomain.Binding{IP: meta.IP, UserAgent: meta.UserAgent}
	var (
		rej      *rejection
		accepted *refreshdomain.RefreshToken
	)
	err := v.refresh.WithinTx(ctx, func(s refreshrepo.Store) error {
		rej, accepted = nil, nil
		now := v.now().UTC()

		rec, err := s.GetByIDForUpdate(ctx, claims.RecordID())
		if err != nil {
			return err
		}
		rej = v.check(ctx, rec, claims, raw, presented, now)
		if rej != nil {
			if rej.revokeAll {
				n, err := s.RevokeAllByVoter(ctx, rec.VoterID, now)
				if err != nil {
					return err
				}
				rej.revoked = n
			}
			return nil
		}

		if err := s.MarkUsed(ctx, rec.ID, now, security.RetiredTokenHash()); err != nil {
			return err
		}
		// A relaxed policy may accept a new address; the next issuance would then
		// not revoke this record by device, so retire it here.
		if !rec.Binding().SameIP(presented) || !rec.Binding().SameUserAgent(presented) {
			if _, err := s.Revoke(ctx, rec.ID, now); err != nil {
				return err
			}
		}
		used := *rec
		used.UsedAt = &now
		if accept != nil {
			if err := accept(s, &used); err != nil {
				return err
			}
		}
		accepted = &used
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if rej != nil {
		v.record(ctx, span, rej.outcome)
		md := map[string]any{"record_id": claims.RecordID()}
		if rej.reason != "" {
			md["reason"] = rej.reason
		}
		if rej.revokeAll {
			md["revoked"] = rej.revoked
		}
		if rej.action == auditdomain.ActionIPMismatch || rej.action == auditdomain.ActionUAMismatch {
			md["expected_ip"] = claims.IP
			md["expected_user_agent"] = claims.UserAgent
		}
		v.audit.Log(ctx, audit.Entry{
			VoterID: claims.VoterID(), Action: rej.action, IP: meta.IP, UserAgent: meta.UserAgent, Metadata: md,
		})
		if rej.revokeAll {
			v.log.Warn("refresh: anomaly, all sessions revoked",
				zap.String("voter_id", claims.VoterID()),
				zap.String("outcome", rej.outcome),
				zap.Int64("revoked", rej.revoked))
		}
		return nil, rej.err
	}

	v.record(ctx, span, OutcomeAccepted)
	v.audit.Log(ctx, audit.Entry{
		VoterID: accepted.VoterID, Action: auditdomain.ActionRefreshToken, IP: meta.IP, UserAgent: meta.UserAgent,
		Metadata: map[string]any{"record_id": accepted.ID},
	})
	return accepted, nil
}

func (v *RefreshValidator) check(ctx context.Context, rec *refreshdomain.RefreshToken, claims *security.RefreshClaims, raw string, presented devicedomain.Binding, now time.Time) *rejection {
	if rec == nil {
		return &rejection{err: ErrTokenRevoked, outcome: OutcomeNotFound, action: auditdomain.ActionTokenRevoked, reason: "not-found"}
	}
	if !security.RefreshTokenHashEqual(raw, rec.TokenHash) {
		return &rejection{err: ErrTokenReuse, outcome: OutcomeReuse, action: auditdomain.ActionTokenReuse, revokeAll: true}
	}
	if rec.Revoked {
		return &rejection{err: ErrTokenRevoked, outcome: OutcomeRevoked, action: auditdomain.ActionTokenRevoked, reason: "already-revoked"}
	}
	if rec.Expired(now) {
		return &rejection{err: ErrTokenRevoked, outcome: OutcomeExpired, action: auditdomain.ActionTokenRevoked, reason: "expired"}
	}
	decision := v.policy.Evaluate(ctx, rec.Binding(), presented)
	if decision.EnforceIP && !rec.Binding().SameIP(presented) {
		return &rejection{err: ErrDeviceMismatch, outcome: OutcomeIPMismatch, action: auditdomain.ActionIPMismatch, revokeAll: true}
	}
	if decision.EnforceUserAgent && !rec.Binding().SameUserAgent(presented) {
		return &rejection{err: ErrDeviceMismatch, outcome: OutcomeUAMismatch, action: auditdomain.ActionUAMismatch, revokeAll: true}
	}
	if claims.Version != v.version {
		return &rejection{err: ErrVersionMismatch, outcome: OutcomeVersionMismatch, action: auditdomain.ActionTokenRevoked, reason: "version-mismatch", revokeAll: true}
	}
	return nil
}

func (v *RefreshValidator) record(ctx context.Context, span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("refresh.outcome", outcome))
	if v.outcomes != nil {
		v.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
