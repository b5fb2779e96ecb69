package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	auditdomain "election-voting/auth/internal/audit/domain"
)

// KafkaProducer implements Producer using segmentio/kafka-go. Messages are keyed by
// voter id so one voter's events stay ordered within a partition.
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaProducer creates a producer that writes audit events to topic.
// Returns nil, nil when brokers or topic are empty (streaming disabled). Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaProducer{writer: writer, topic: topic}, nil
}

// Emit serializes the event as JSON and writes it to the topic.
func (p *KafkaProducer) Emit(ctx context.Context, event *auditdomain.AuditLog) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	msg, err := Message(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, msg)
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Message encodes event as a Kafka message.
func Message(event *auditdomain.AuditLog) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	var key []byte
	if event.VoterID != nil {
		key = []byte(*event.VoterID)
	}
	return kafka.Message{
		Key:   key,
		Value: payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
		},
	}, nil
}
