package models

import "time"

// Reservation is the time-boxed hold of one user on a set of ticket numbers
// in one competition.
type Reservation struct {
	CompetitionID string    `json:"competition_id"`
	UserID        string    `json:"user_id"`
	TicketNumbers []int     `json:"ticket_numbers"`
	BonusNumbers  []int     `json:"bonus_numbers,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// PaidCount is the number of tickets that are charged for.
func (r *Reservation) PaidCount() int {
	return len(r.TicketNumbers) - len(r.BonusNumbers)
}

func (r *Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

type ReserveRequest struct {
	Quantity      int   `json:"quantity,omitempty"`
	TicketNumbers []int `json:"ticket_numbers,omitempty"`
}

// ReserveResult is what a successful reservation returns to the caller.
type ReserveResult struct {
	CompetitionID string    `json:"competition_id"`
	TicketNumbers []int     `json:"ticket_numbers"`
	BonusNumbers  []int     `json:"bonus_numbers,omitempty"`
	BonusMissed   int       `json:"bonus_missed,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type CompetitionStatusView struct {
	CompetitionID   string            `json:"competition_id"`
	Status          CompetitionStatus `json:"status"`
	TotalTickets    int               `json:"total_tickets"`
	AvailableCount  int               `json:"available_count"`
	Tally           Tally             `json:"tally"`
	UserReservation *Reservation      `json:"user_reservation,omitempty"`
}
