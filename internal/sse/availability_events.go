package sse

import (
	"context"
	"sync"

	"ms-raffle/internal/models"
)

// AvailabilityEmitter fans reservation events out to the SSE clients
// watching each competition.
type AvailabilityEmitter struct {
	// key: competitionID, value: client channels
	clients map[string][]chan models.ReservationEvent
	mu      sync.RWMutex
}

func NewAvailabilityEmitter() *AvailabilityEmitter {
	return &AvailabilityEmitter{
		clients: make(map[string][]chan models.ReservationEvent),
	}
}

// Subscribe registers a client until ctx is done; the returned channel is
// closed on removal.
func (e *AvailabilityEmitter) Subscribe(ctx context.Context, competitionID string) <-chan models.ReservationEvent {
	clientChan := make(chan models.ReservationEvent, 16)

	e.mu.Lock()
	e.clients[competitionID] = append(e.clients[competitionID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(competitionID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts without blocking; a slow client just misses the event.
func (e *AvailabilityEmitter) Emit(event models.ReservationEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[event.CompetitionID] {
		select {
		case clientChan <- event:
		default:
		}
	}
}

func (e *AvailabilityEmitter) remove(competitionID string, clientChan chan models.ReservationEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[competitionID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[competitionID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[competitionID]) == 0 {
		delete(e.clients, competitionID)
	}
}

// ClientCount returns the number of clients watching a competition.
func (e *AvailabilityEmitter) ClientCount(competitionID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[competitionID])
}
