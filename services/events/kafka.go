package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/norm"
)

const gradedEventType = "norm.graded"

// writes are synchronous on the request path, so batches are flushed quickly
const writerBatchTimeout = 10 * time.Millisecond

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes graded events to a single topic, keyed by student
// so that every result of a student lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
}

var _ norm.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(conf *core.Config) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(conf.Kafka.Brokers...),
			Topic:        conf.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			BatchTimeout: writerBatchTimeout,
		},
	}
}

func (p *KafkaPublisher) PublishGraded(ctx context.Context, events ...norm.GradedEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "encoding graded event")
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(ev.StudentID),
			Value:   value,
			Time:    ev.OccurredAt,
			Headers: []kafka.Header{{Key: "event_type", Value: []byte(gradedEventType)}},
		})
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msgs...), "writing graded events")
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event; used when no broker is configured.
type NopPublisher struct{}

var _ norm.EventPublisher = NopPublisher{}

func (NopPublisher) PublishGraded(context.Context, ...norm.GradedEvent) error { return nil }

// NewPublisher returns a Kafka publisher, or a NopPublisher when no broker is configured.
func NewPublisher(conf *core.Config) norm.EventPublisher {
	if len(conf.Kafka.Brokers) == 0 || conf.Kafka.Topic == "" {
		return NopPublisher{}
	}
	return NewKafkaPublisher(conf)
}
