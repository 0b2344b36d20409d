package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/power"
)

// MessageWriter is the producer surface of kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each record as JSON keyed by its timestamp.
type Kafka struct {
	writer MessageWriter
}

// NewKafka builds a hashed-partition producer for the configured topic.
func NewKafka(cfg config.KafkaConfig) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

// NewKafkaWithWriter builds the sink around an existing writer.
func NewKafkaWithWriter(writer MessageWriter) *Kafka {
	return &Kafka{writer: writer}
}

// Name implements Sink.
func (s *Kafka) Name() string { return "kafka" }

// Write implements Sink.
func (s *Kafka) Write(ctx context.Context, m power.Metrics) error {
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(m.Timestamp.UTC().Format(time.RFC3339Nano)),
		Value: value,
		Time:  m.Timestamp,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *Kafka) Close() error {
	return s.writer.Close()
}
