package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Fatal("NewClient with empty URL should fail")
	}
}

func TestPushAuditJSON(t *testing.T) {
	var got PushRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	raw := []byte(`{"id":"a1","voterId":"v1","action":"TOKEN_REUSE","createdAt":"2026-03-01T12:00:00Z"}`)
	if err := c.PushAuditJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushAuditJSON: %v", err)
	}

	if path != "/loki/api/v1/push" {
		t.Errorf("path = %q", path)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != DefaultJob || s.Stream["action"] != "TOKEN_REUSE" {
		t.Errorf("labels = %v", s.Stream)
	}
	if _, ok := s.Stream["voterId"]; ok {
		t.Error("voter id must not become a label")
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixNano()
	if len(s.Values) != 1 || s.Values[0][0] != jsonInt(want) || s.Values[0][1] != string(raw) {
		t.Errorf("values = %v", s.Values)
	}
}

func TestPushAuditJSON_UnparsableLine(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	if err := c.PushAuditJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushAuditJSON: %v", err)
	}
	if got.Streams[0].Values[0][0] != jsonInt(fixed.UnixNano()) {
		t.Errorf("timestamp = %s, want current time", got.Streams[0].Values[0][0])
	}
	if len(got.Streams[0].Stream) != 1 {
		t.Errorf("labels = %v, want job only", got.Streams[0].Stream)
	}
}

func TestPush_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad labels", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	if err := c.Push(context.Background(), time.Now(), "line", map[string]string{"action": "LOGIN SUCCESS"}); err == nil {
		t.Fatal("Push should fail on 400")
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
