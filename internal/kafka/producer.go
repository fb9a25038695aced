package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON messages to any topic; the topic travels on each message.
type Producer struct {
	Writer messageWriter
	Logger *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish marshals value and writes it keyed by key, so that events about the
// same competition keep their order. A nil Producer (Kafka disabled) drops
// the message.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	if p == nil {
		return nil
	}
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", topic, err)
	}
	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		p.Logger.LogKafka("PUBLISH_FAILED", topic, err.Error())
		return err
	}
	p.Logger.LogKafka("PUBLISHED", topic, key)
	return nil
}

func (p *Producer) PublishReservationEvent(ctx context.Context, topic string, event models.ReservationEvent) error {
	return p.Publish(ctx, topic, event.CompetitionID, event)
}

func (p *Producer) PublishOrder(ctx context.Context, topic string, order models.Order) error {
	return p.Publish(ctx, topic, order.OrderID, order)
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.Writer.Close()
}
