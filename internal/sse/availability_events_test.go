package sse

import (
	"context"
	"testing"
	"time"

	"ms-raffle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityEmitter_DeliversPerCompetition(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	one := e.Subscribe(ctx, "comp-1")
	two := e.Subscribe(ctx, "comp-2")
	assert.Equal(t, 1, e.ClientCount("comp-1"))

	e.Emit(models.ReservationEvent{CompetitionID: "comp-1", Type: models.EventReservationCreated, AvailableCount: 7})

	select {
	case ev := <-one:
		assert.Equal(t, 7, ev.AvailableCount)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case ev := <-two:
		t.Fatalf("unexpected event for comp-2: %+v", ev)
	default:
	}
}

func TestAvailabilityEmitter_SlowClientDoesNotBlock(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = e.Subscribe(ctx, "comp-1")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			e.Emit(models.ReservationEvent{CompetitionID: "comp-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full client")
	}
}

func TestAvailabilityEmitter_RemovesOnCancel(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.Subscribe(ctx, "comp-1")
	cancel()

	require.Eventually(t, func() bool { return e.ClientCount("comp-1") == 0 }, time.Second, 10*time.Millisecond)
	_, open := <-ch
	assert.False(t, open)
}
