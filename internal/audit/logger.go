// Package audit records security events for the auth service.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"election-voting/auth/internal/audit/domain"
	auditrepo "election-voting/auth/internal/audit/repository"
	"election-voting/auth/internal/telemetry"
)

// Entry is one event as reported by a caller. VoterID is empty for unauthenticated failures.
type Entry struct {
	VoterID   string
	Action    domain.Action
	IP        string
	UserAgent string
	Metadata  map[string]any
}

// AuditLogger writes a single audit event. Used by the auth service on every security-relevant transition.
// Log is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	Log(ctx context.Context, e Entry)
}

// Logger implements AuditLogger: it persists to the repository and mirrors each
// persisted entry to the telemetry emitters asynchronously.
type Logger struct {
	repo     auditrepo.Repository
	emitters []telemetry.EventEmitter
	log      *zap.Logger
	now      func() time.Time
}

// NewLogger returns a Logger. logger may be nil; emitters that are nil are skipped.
func NewLogger(repo auditrepo.Repository, logger *zap.Logger, emitters ...telemetry.EventEmitter) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Logger{repo: repo, log: logger, now: time.Now}
	for _, e := range emitters {
		if e != nil {
			l.emitters = append(l.emitters, e)
		}
	}
	return l
}

// Log writes one audit log entry. Unknown actions are dropped.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if !e.Action.Valid() {
		l.log.Warn("audit: unknown action dropped", zap.String("action", string(e.Action)))
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.NewString(),
		Action:    e.Action,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Metadata:  e.Metadata,
		CreatedAt: l.now().UTC(),
	}
	if e.VoterID != "" {
		voterID := e.VoterID
		entry.VoterID = &voterID
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			l.log.Error("audit: failed to persist event",
				zap.String("action", string(e.Action)),
				zap.String("voter_id", e.VoterID),
				zap.Error(err))
		}
	}
	for _, emitter := range l.emitters {
		telemetry.EmitAsync(emitter, entry, l.log)
	}
}

// Nop discards every entry.
type Nop struct{}

// Log implements AuditLogger.
func (Nop) Log(context.Context, Entry) {}
