package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	auditdomain "election-voting/auth/internal/audit/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down
// OTel providers and the Kafka writer, so in-flight async emits can complete.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the request is not blocked.
// The goroutine uses context.Background so request cancellation does not abort the emit.
// emitter and event may be nil; then EmitAsync returns immediately.
func EmitAsync(emitter EventEmitter, event *auditdomain.AuditLog, logger *zap.Logger) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil && logger != nil {
			logger.Warn("telemetry: async emit failed", zap.String("action", string(event.Action)), zap.Error(err))
		}
	}()
}
