package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"menu3d/internal/infra"
)

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope is the wire format of job events on the topic.
type envelope struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	JobEvent
}

// KafkaSink mirrors job lifecycle events to a Kafka topic, keyed by job ID so
// every event of one job lands on the same partition.
type KafkaSink struct {
	writer MessageWriter
	logger infra.Logger
}

// NewKafkaWriter builds an async writer for brokers/topic. Delivery errors are
// logged from the completion callback.
func NewKafkaWriter(brokers []string, topic string, logger infra.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error().Err(err).Int("messages", len(messages)).Msg("kafka delivery failed")
			}
		},
	}
}

func NewKafkaSink(writer MessageWriter, logger infra.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, logger: infra.Component(logger, "kafka_sink")}
}

// Attach subscribes the sink to every job event on bus.
func (s *KafkaSink) Attach(bus Bus) func() {
	return SubscribeJobs(bus, s.handle)
}

func (s *KafkaSink) handle(ctx context.Context, ev Event) error {
	payload, ok := ev.Payload.(JobEvent)
	if !ok {
		return fmt.Errorf("kafka sink: unexpected payload %T", ev.Payload)
	}
	value, err := json.Marshal(envelope{Type: ev.Type, Timestamp: ev.Timestamp, JobEvent: payload})
	if err != nil {
		return fmt.Errorf("kafka sink: encode: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(payload.JobID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}
	// The publisher's context may already be done; delivery should not be.
	if err := s.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		return fmt.Errorf("kafka sink: write: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// MessageReader is the subset of *kafka.Reader Tail needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewKafkaReader builds a consumer-group reader for the job topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}

// Tail decodes job events from reader and hands each to fn until ctx ends.
func Tail(ctx context.Context, reader MessageReader, logger infra.Logger, fn func(EventType, time.Time, JobEvent) error) error {
	defer reader.Close()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping undecodable event")
			continue
		}
		if err := fn(env.Type, env.Timestamp, env.JobEvent); err != nil {
			return err
		}
	}
}
