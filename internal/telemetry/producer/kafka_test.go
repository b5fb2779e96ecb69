package producer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	auditdomain "election-voting/auth/internal/audit/domain"
)

func TestNewKafkaProducer_DisabledWithoutConfig(t *testing.T) {
	p, err := NewKafkaProducer(nil, "topic")
	if err != nil || p != nil {
		t.Errorf("no brokers: got %v, %v", p, err)
	}
	p, err = NewKafkaProducer([]string{"localhost:9092"}, "")
	if err != nil || p != nil {
		t.Errorf("no topic: got %v, %v", p, err)
	}
	var nilProducer *KafkaProducer
	if err := nilProducer.Emit(context.Background(), &auditdomain.AuditLog{}); err != nil {
		t.Errorf("nil producer Emit: %v", err)
	}
	if err := nilProducer.Close(); err != nil {
		t.Errorf("nil producer Close: %v", err)
	}
}

func TestMessage(t *testing.T) {
	voter := "v1"
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := Message(&auditdomain.AuditLog{ID: "a1", VoterID: &voter, Action: auditdomain.ActionTokenReuse, CreatedAt: at})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if string(msg.Key) != "v1" || !msg.Time.Equal(at) {
		t.Errorf("key=%q time=%v", msg.Key, msg.Time)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "TOKEN_REUSE" {
		t.Errorf("headers = %v", msg.Headers)
	}
	var decoded auditdomain.AuditLog
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != "a1" || decoded.Action != auditdomain.ActionTokenReuse {
		t.Errorf("decoded = %+v", decoded)
	}

	anon, _ := Message(&auditdomain.AuditLog{Action: auditdomain.ActionLoginFailure})
	if anon.Key != nil {
		t.Errorf("anonymous event key = %q, want nil", anon.Key)
	}
}
