package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketCount represents a daily count of tickets sold for a competition
type TicketCount struct {
	bun.BaseModel `bun:"table:ticket_counts"`

	ID            int64     `bun:"id,pk,autoincrement" json:"-"`
	CompetitionID string    `bun:"competition_id" json:"competition_id"`
	Count         int       `bun:"count" json:"count"`
	Date          time.Time `bun:"date" json:"date"`
}
