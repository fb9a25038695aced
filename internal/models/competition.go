package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type CompetitionStatus string

const (
	CompetitionDraft     CompetitionStatus = "DRAFT"
	CompetitionUpcoming  CompetitionStatus = "UPCOMING"
	CompetitionActive    CompetitionStatus = "ACTIVE"
	CompetitionSoldOut   CompetitionStatus = "SOLD_OUT"
	CompetitionDrawing   CompetitionStatus = "DRAWING"
	CompetitionCompleted CompetitionStatus = "COMPLETED"
	CompetitionCancelled CompetitionStatus = "CANCELLED"
)

// competitionTransitions lists the statuses reachable from each status.
// CANCELLED is allowed from everything that is not terminal.
var competitionTransitions = map[CompetitionStatus][]CompetitionStatus{
	CompetitionDraft:    {CompetitionUpcoming, CompetitionActive, CompetitionCancelled},
	CompetitionUpcoming: {CompetitionActive, CompetitionCancelled},
	CompetitionActive:   {CompetitionSoldOut, CompetitionDrawing, CompetitionCancelled},
	CompetitionSoldOut:  {CompetitionDrawing, CompetitionCancelled},
	CompetitionDrawing:  {CompetitionCompleted, CompetitionCancelled},
}

// IsTerminal reports whether no further transition is possible.
func (s CompetitionStatus) IsTerminal() bool {
	return s == CompetitionCompleted || s == CompetitionCancelled
}

// CanTransitionTo reports whether moving from s to next respects the lifecycle.
func (s CompetitionStatus) CanTransitionTo(next CompetitionStatus) bool {
	for _, allowed := range competitionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseCompetitionStatus(v string) (CompetitionStatus, error) {
	s := CompetitionStatus(v)
	switch s {
	case CompetitionDraft, CompetitionUpcoming, CompetitionActive, CompetitionSoldOut,
		CompetitionDrawing, CompetitionCompleted, CompetitionCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown competition status %q", v)
}

type Competition struct {
	bun.BaseModel `bun:"table:competitions"`

	ID                string            `bun:"id,pk" json:"id"`
	Title             string            `bun:"title" json:"title"`
	TotalTickets      int               `bun:"total_tickets,notnull" json:"total_tickets"`
	TicketPrice       float64           `bun:"ticket_price" json:"ticket_price"`
	MaxTicketsPerUser int               `bun:"max_tickets_per_user" json:"max_tickets_per_user"`
	Status            CompetitionStatus `bun:"status,notnull" json:"status"`
	DrawDate          time.Time         `bun:"draw_date,nullzero" json:"draw_date"`
	DrawnAt           *time.Time        `bun:"drawn_at,nullzero" json:"drawn_at,omitempty"`
	WinningNumber     int               `bun:"winning_number,nullzero" json:"winning_number,omitempty"`
	CreatedAt         time.Time         `bun:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `bun:"updated_at,nullzero" json:"updated_at"`
}

// UserLimit returns the per-user ticket cap; zero or negative means the whole pool.
func (c *Competition) UserLimit() int {
	if c.MaxTicketsPerUser <= 0 {
		return c.TotalTickets
	}
	return c.MaxTicketsPerUser
}

type CompetitionRequest struct {
	Title             string    `json:"title" validate:"required,max=200"`
	TotalTickets      int       `json:"total_tickets" validate:"gt=0,lte=1000000"`
	TicketPrice       float64   `json:"ticket_price" validate:"gte=0"`
	MaxTicketsPerUser int       `json:"max_tickets_per_user" validate:"gte=0,ltefield=TotalTickets"`
	DrawDate          time.Time `json:"draw_date"`
}
