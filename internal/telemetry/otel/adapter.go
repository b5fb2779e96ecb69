package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "election-voting/auth/internal/audit/domain"
	"election-voting/auth/internal/telemetry"
)

// recordEmitter is the part of otellog.Logger the adapter uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends audit events as OTel log records via provider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("election-voting.auth.audit")}
}

// NewEventEmitterWithLogger wraps an existing record emitter. Used in tests.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *auditdomain.AuditLog) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the audit event to an OTel log record. Anomaly actions are emitted at WARN.
func (e *otelEmitter) Emit(ctx context.Context, event *auditdomain.AuditLog) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetTimestamp(event.CreatedAt)
	if rec.Timestamp().IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetEventName(string(event.Action))
	rec.SetSeverity(severity(event.Action))
	rec.SetSeverityText(rec.Severity().String())
	if len(event.Metadata) > 0 {
		if b, err := json.Marshal(event.Metadata); err == nil {
			rec.SetBody(otellog.StringValue(string(b)))
		}
	}
	rec.AddAttributes(otellog.String("audit.id", event.ID), otellog.String("audit.action", string(event.Action)))
	if event.VoterID != nil {
		rec.AddAttributes(otellog.String("voter.id", *event.VoterID))
	}
	if event.IP != "" {
		rec.AddAttributes(otellog.String("client.address", event.IP))
	}
	if event.UserAgent != "" {
		rec.AddAttributes(otellog.String("user_agent.original", event.UserAgent))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severity(a auditdomain.Action) otellog.Severity {
	switch a {
	case auditdomain.ActionTokenReuse, auditdomain.ActionIPMismatch, auditdomain.ActionUAMismatch:
		return otellog.SeverityWarn
	case auditdomain.ActionLoginFailure, auditdomain.ActionTwoFactorFailure, auditdomain.ActionTokenRevoked, auditdomain.ActionRateLimited:
		return otellog.SeverityInfo2
	}
	return otellog.SeverityInfo
}
