package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

// Listener gets every reservation event in-process, before it is queued for Kafka.
type Listener func(models.ReservationEvent)

// AuditPublisher is the fire-and-forget audit sink. Emit never blocks on the
// broker: events are queued and written by a background worker, and dropped
// with a warning when the queue is full.
type AuditPublisher struct {
	Producer *Producer
	Topic    string
	Logger   *logger.Logger

	mu        sync.RWMutex
	listeners []Listener
	queue     chan models.ReservationEvent
}

func NewAuditPublisher(producer *Producer, topic string, log *logger.Logger, buffer int) *AuditPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &AuditPublisher{
		Producer: producer,
		Topic:    topic,
		Logger:   log,
		queue:    make(chan models.ReservationEvent, buffer),
	}
}

func (a *AuditPublisher) Subscribe(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

func (a *AuditPublisher) Emit(_ context.Context, event models.ReservationEvent) {
	a.mu.RLock()
	listeners := a.listeners
	a.mu.RUnlock()
	for _, l := range listeners {
		l(event)
	}

	if a.Producer == nil {
		return
	}
	select {
	case a.queue <- event:
	default:
		a.Logger.Warn("KAFKA", fmt.Sprintf("Audit queue full, dropped %s for %s", event.Type, event.CompetitionID))
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is left
// with a short grace period.
func (a *AuditPublisher) Run(ctx context.Context) {
	for {
		select {
		case event := <-a.queue:
			a.write(ctx, event)
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

func (a *AuditPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-a.queue:
			a.write(ctx, event)
		default:
			return
		}
	}
}

func (a *AuditPublisher) write(ctx context.Context, event models.ReservationEvent) {
	if err := a.Producer.PublishReservationEvent(ctx, a.Topic, event); err != nil {
		a.Logger.Error("KAFKA", fmt.Sprintf("Audit event %s (%s) not delivered: %v", event.EventID, event.Type, err))
	}
}
