package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

type recordingSetter struct {
	mu       sync.Mutex
	statuses []healthpb.HealthCheckResponse_ServingStatus
}

func (r *recordingSetter) SetServingStatus(_ string, s healthpb.HealthCheckResponse_ServingStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recordingSetter) first() healthpb.HealthCheckResponse_ServingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[0]
}

func TestLiveness(t *testing.T) {
	c := NewChecker(&mockPinger{pingErr: errors.New("down")}, nil, nil)
	rec := httptest.NewRecorder()
	c.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness must not depend on probes, got %d", rec.Code)
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name     string
		db       Pinger
		policy   PolicyChecker
		want     int
		contains string
	}{
		{"no dependencies", nil, nil, http.StatusOK, `"ok"`},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, http.StatusOK, `"database":"ok"`},
		{"database down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, http.StatusServiceUnavailable, `"database":"unavailable"`},
		{"policy broken", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, http.StatusServiceUnavailable, `"policy":"unavailable"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(tt.db, tt.policy, nil)
			rec := httptest.NewRecorder()
			c.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body %s does not contain %s", rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestSync(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want healthpb.HealthCheckResponse_ServingStatus
	}{
		{"ready", &mockPinger{}, healthpb.HealthCheckResponse_SERVING},
		{"not ready", &mockPinger{pingErr: errors.New("down")}, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			setter := &recordingSetter{}
			done := make(chan struct{})
			go func() {
				NewChecker(tt.db, nil, nil).Sync(ctx, setter, time.Hour)
				close(done)
			}()
			deadline := time.Now().Add(time.Second)
			for {
				setter.mu.Lock()
				n := len(setter.statuses)
				setter.mu.Unlock()
				if n > 0 || time.Now().After(deadline) {
					break
				}
				time.Sleep(time.Millisecond)
			}
			cancel()
			<-done
			if got := setter.first(); got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}
