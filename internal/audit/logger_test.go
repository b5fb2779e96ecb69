package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"election-voting/auth/internal/audit/domain"
	auditrepo "election-voting/auth/internal/audit/repository"
)

type failingRepo struct{}

func (failingRepo) Create(context.Context, *domain.AuditLog) error {
	return errors.New("db down")
}

func (failingRepo) List(context.Context, domain.Filter) ([]*domain.AuditLog, error) {
	return nil, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*domain.AuditLog
	done   chan struct{}
}

func (r *recordingEmitter) Emit(ctx context.Context, e *domain.AuditLog) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func TestLogger_Log_Persists(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	l := NewLogger(repo, nil)
	l.Log(context.Background(), Entry{
		VoterID:   "voter-1",
		Action:    domain.ActionTokenReuse,
		IP:        "10.0.0.1",
		UserAgent: "UA",
		Metadata:  map[string]any{"record_id": "rec-1"},
	})

	entries := repo.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("id/created_at not set: %+v", e)
	}
	if e.VoterID == nil || *e.VoterID != "voter-1" {
		t.Errorf("voter_id = %v, want voter-1", e.VoterID)
	}
	if e.Action != domain.ActionTokenReuse || e.IP != "10.0.0.1" || e.UserAgent != "UA" {
		t.Errorf("entry = %+v", e)
	}
	if e.Metadata["record_id"] != "rec-1" {
		t.Errorf("metadata = %v", e.Metadata)
	}
}

func TestLogger_Log_AnonymousHasNilVoter(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	NewLogger(repo, nil).Log(context.Background(), Entry{Action: domain.ActionLoginFailure, IP: "1.2.3.4"})
	entries := repo.Entries()
	if len(entries) != 1 || entries[0].VoterID != nil {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Metadata == nil {
		t.Error("metadata should default to an empty map")
	}
}

func TestLogger_Log_DropsUnknownAction(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	NewLogger(repo, nil).Log(context.Background(), Entry{Action: "NOT_AN_ACTION"})
	if n := len(repo.Entries()); n != 0 {
		t.Errorf("expected no entries, got %d", n)
	}
}

func TestLogger_Log_RepoErrorDoesNotPanic(t *testing.T) {
	NewLogger(failingRepo{}, nil).Log(context.Background(), Entry{Action: domain.ActionLogout})
}

func TestLogger_Log_EmitsToEmitters(t *testing.T) {
	em := &recordingEmitter{done: make(chan struct{}, 1)}
	l := NewLogger(auditrepo.NewMemoryRepository(), nil, nil, em)
	l.Log(context.Background(), Entry{VoterID: "v", Action: domain.ActionLoginSuccess})

	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("emitter was not called")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.events) != 1 || em.events[0].Action != domain.ActionLoginSuccess {
		t.Errorf("events = %+v", em.events)
	}
}

func TestNop_Log(t *testing.T) {
	var l AuditLogger = Nop{}
	l.Log(context.Background(), Entry{Action: domain.ActionLogout})
}
