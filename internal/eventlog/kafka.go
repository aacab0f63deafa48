package eventlog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"maitred/internal/realtime"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the exporter uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaExporter copies every emitted event to a topic for analytics and
// audit consumers. Messages are keyed by restaurant id so one restaurant's
// events stay ordered within a partition.
type KafkaExporter struct {
	Writer MessageWriter
}

// NewKafkaWriter returns an async writer: WriteMessages never waits for the
// brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafkaExporter(writer MessageWriter) *KafkaExporter {
	return &KafkaExporter{Writer: writer}
}

// Emit implements realtime.Sink.
func (e *KafkaExporter) Emit(ctx context.Context, env realtime.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(env.RestaurantID), 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(env.Event)},
		},
	})
}

func (e *KafkaExporter) Close() error {
	return e.Writer.Close()
}
