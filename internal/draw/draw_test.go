package draw

import (
	"bytes"
	"context"
	"testing"

	"ms-raffle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(numbers ...int) []models.Ticket {
	out := make([]models.Ticket, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, models.Ticket{CompetitionID: "comp-1", TicketNumber: n, Status: models.TicketSold, UserID: "alice"})
	}
	return out
}

func TestRandomDrawer_NoEntries(t *testing.T) {
	_, err := NewRandomDrawer().Draw(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestRandomDrawer_PicksAnEntry(t *testing.T) {
	d := NewRandomDrawer()
	pool := entries(3, 7, 11, 19)

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		winner, err := d.Draw(context.Background(), pool)
		require.NoError(t, err)
		seen[winner.TicketNumber] = true
	}
	for n := range seen {
		assert.Contains(t, []int{3, 7, 11, 19}, n)
	}
	assert.Greater(t, len(seen), 1, "draws should not always land on the same entry")
}

func TestRandomDrawer_DeterministicSource(t *testing.T) {
	// a zero byte stream always selects index 0
	d := &RandomDrawer{Reader: bytes.NewReader(make([]byte, 64))}
	winner, err := d.Draw(context.Background(), entries(5, 6, 7))
	require.NoError(t, err)
	assert.Equal(t, 5, winner.TicketNumber)
}

func TestRandomDrawer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRandomDrawer().Draw(ctx, entries(1))
	assert.ErrorIs(t, err, context.Canceled)
}
