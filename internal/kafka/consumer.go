package kafka

import (
	"context"
	"errors"
	"fmt"

	"ms-raffle/internal/logger"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. Returning an error leaves the message
// uncommitted so it is redelivered after a restart.
type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	Reader messageReader
	Logger *logger.Logger
	topic  string
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Logger: log, topic: topic}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handler Handler) {
	c.Logger.LogKafka("CONSUMER_STARTED", c.topic, "waiting for messages")
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.Logger.LogKafka("CONSUMER_STOPPED", c.topic, "context done")
				return
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", c.topic, err))
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("Handler failed for %s offset %d: %v", msg.Topic, msg.Offset, err))
			continue
		}
		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Commit failed for %s offset %d: %v", msg.Topic, msg.Offset, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
