package order

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-raffle/internal/models"

	"github.com/segmentio/kafka-go"
)

// PaymentSucceededHandler consumes payment success signals. A payment
// conflict has been recorded by the time it returns, so the message is
// committed; other failures are retried on redelivery.
func (s *OrderService) PaymentSucceededHandler(ctx context.Context, msg kafka.Message) error {
	signal, ok := s.decodeSignal(msg)
	if !ok {
		return nil
	}
	err := s.HandlePaymentSucceeded(ctx, signal.OrderID, signal.PaymentRef)
	if models.IsPaymentConflict(err) || models.IsCategory(err, models.CategoryNotFound) {
		return nil
	}
	return err
}

func (s *OrderService) PaymentFailedHandler(ctx context.Context, msg kafka.Message) error {
	signal, ok := s.decodeSignal(msg)
	if !ok {
		return nil
	}
	err := s.HandlePaymentFailed(ctx, signal.OrderID)
	if models.IsCategory(err, models.CategoryNotFound) || models.ErrorReason(err) == models.ReasonOrderStateConflict {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Ignoring failure signal for order %s: %v", signal.OrderID, err))
		return nil
	}
	return err
}

// decodeSignal drops messages that can never be processed.
func (s *OrderService) decodeSignal(msg kafka.Message) (models.PaymentSignal, bool) {
	var signal models.PaymentSignal
	if err := json.Unmarshal(msg.Value, &signal); err != nil || signal.OrderID == "" {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Skipping malformed payment signal on %s at offset %d", msg.Topic, msg.Offset))
		return signal, false
	}
	s.Logger.LogKafka("RECEIVED", msg.Topic, signal.OrderID)
	return signal, true
}
