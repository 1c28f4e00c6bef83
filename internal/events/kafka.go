package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes changes to a single topic keyed by restaurant, so
// one restaurant's changes stay ordered within a partition.
//
// The writer is async: Publish returns once the message is batched, and
// delivery failures are logged from the completion callback.
type KafkaPublisher struct {
	Writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{Writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		MaxAttempts:            3,
		Completion:             kafkaCompletion(log),
	}}
}

func kafkaCompletion(log *zap.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		log.Warn("kafka delivery failed",
			zap.Int("messages", len(msgs)),
			zap.Error(err),
		)
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(c.RestaurantID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "subject", Value: []byte(c.Subject())},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}
