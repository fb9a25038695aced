package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketAvailable TicketStatus = "AVAILABLE"
	TicketReserved  TicketStatus = "RESERVED"
	TicketSold      TicketStatus = "SOLD"
	TicketFreeEntry TicketStatus = "FREE_ENTRY"
)

// Ticket is one numbered entry of a competition's pool.
type Ticket struct {
	bun.BaseModel `bun:"table:competition_tickets"`

	CompetitionID string       `bun:"competition_id,pk" json:"competition_id"`
	TicketNumber  int          `bun:"ticket_number,pk" json:"ticket_number"`
	Status        TicketStatus `bun:"status,notnull" json:"status"`
	UserID        string       `bun:"user_id,nullzero" json:"user_id,omitempty"`
	ReservedUntil *time.Time   `bun:"reserved_until,nullzero" json:"reserved_until,omitempty"`
	UpdatedAt     time.Time    `bun:"updated_at,nullzero" json:"updated_at"`
}

// Biddable reports whether the ticket can be reserved at now. A reservation
// whose deadline has passed no longer holds the ticket.
func (t *Ticket) Biddable(now time.Time) bool {
	switch t.Status {
	case TicketAvailable:
		return true
	case TicketReserved:
		return t.ReservedUntil == nil || !t.ReservedUntil.After(now)
	}
	return false
}

// Tally is the per-status breakdown of a pool. Expired reservations are
// counted as Available.
type Tally struct {
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Sold      int `json:"sold"`
	FreeEntry int `json:"free_entry"`
}

func (t Tally) Total() int {
	return t.Available + t.Reserved + t.Sold + t.FreeEntry
}
