package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "election-voting/auth/internal/audit/domain"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), &auditdomain.AuditLog{Action: auditdomain.ActionLogout}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
}

type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
}

func TestEmit_AttributeMapping(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	voter := "v1"
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	event := &auditdomain.AuditLog{
		ID:        "a1",
		VoterID:   &voter,
		Action:    auditdomain.ActionTokenReuse,
		IP:        "10.0.0.1",
		UserAgent: "UA",
		Metadata:  map[string]any{"recordId": "r1"},
		CreatedAt: at,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec
	if !rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), at)
	}
	if rec.EventName() != "TOKEN_REUSE" || rec.Severity() != otellog.SeverityWarn {
		t.Errorf("event name %q severity %v", rec.EventName(), rec.Severity())
	}
	if rec.Body().AsString() != `{"recordId":"r1"}` {
		t.Errorf("body = %q", rec.Body().AsString())
	}
	attrs := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"audit.id": "a1", "audit.action": "TOKEN_REUSE", "voter.id": "v1",
		"client.address": "10.0.0.1", "user_agent.original": "UA",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEmit_DefaultsTimestamp(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	_ = em.Emit(context.Background(), &auditdomain.AuditLog{Action: auditdomain.ActionLogout})
	if capture.rec.Timestamp().IsZero() {
		t.Error("timestamp should default to now")
	}
	if capture.rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v", capture.rec.Severity())
	}
}
