// Package queue provides the Kafka producer behind the outbreak
// surveillance event feed.
package queue

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Producer publishes outbreak events to a Kafka topic for downstream
// surveillance consumers.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer. Messages are partitioned by key (the
// event's grid cell) so each neighborhood's reports stay ordered.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Publish sends one message.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
