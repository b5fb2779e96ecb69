// Package telemetry fans security events out to streaming and observability sinks.
package telemetry

import (
	"context"

	auditdomain "election-voting/auth/internal/audit/domain"
)

// EventEmitter publishes one audit event to an external sink (Kafka, OTel logs).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *auditdomain.AuditLog) error
}
