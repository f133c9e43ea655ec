package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one record per message, keyed by reviewer.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaWriter builds a writer that spreads records across partitions by
// least bytes.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	records := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		body, err := m.encode()
		if err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
		records = append(records, kafka.Message{
			Key:   []byte(m.Key()),
			Value: body,
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(m.Kind)},
			},
		})
	}
	if err := p.w.WriteMessages(ctx, records...); err != nil {
		return fmt.Errorf("write kafka notifications: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
