// Package kafka publishes import events to a Kafka cluster.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/tkrause/balance-up/internal/events"
)

// Publisher writes import events to the import_completed topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher connects a publisher to the given brokers.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    events.TopicImportCompleted,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishImportCompleted serializes the event and writes it keyed by run id.
func (p *Publisher) PublishImportCompleted(ctx context.Context, event events.ImportCompleted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("PublishImportCompleted: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID),
		Value: data,
	}); err != nil {
		return fmt.Errorf("PublishImportCompleted: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
