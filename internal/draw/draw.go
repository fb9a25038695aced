package draw

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"ms-raffle/internal/models"
)

var ErrNoEntries = errors.New("no entries to draw from")

// Drawer picks the winning entry of a competition.
type Drawer interface {
	Draw(ctx context.Context, entries []models.Ticket) (models.Ticket, error)
}

// RandomDrawer draws uniformly using a cryptographic source.
type RandomDrawer struct {
	Reader io.Reader
}

func NewRandomDrawer() *RandomDrawer {
	return &RandomDrawer{Reader: rand.Reader}
}

func (d *RandomDrawer) Draw(ctx context.Context, entries []models.Ticket) (models.Ticket, error) {
	if len(entries) == 0 {
		return models.Ticket{}, ErrNoEntries
	}
	if err := ctx.Err(); err != nil {
		return models.Ticket{}, err
	}

	reader := d.Reader
	if reader == nil {
		reader = rand.Reader
	}
	idx, err := rand.Int(reader, big.NewInt(int64(len(entries))))
	if err != nil {
		return models.Ticket{}, fmt.Errorf("draw random entry: %w", err)
	}
	return entries[idx.Int64()], nil
}
