package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/bank-es/internal/infrastructure/store"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes committed events to a Kafka topic keyed by aggregate id,
// so every event of one aggregate lands on the same partition in order.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, event store.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "x-event-id", Value: []byte(event.ID)},
			{Key: "x-event-type", Value: []byte(event.EventType)},
			{Key: "x-aggregate-type", Value: []byte(event.AggregateType)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
