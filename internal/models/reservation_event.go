package models

import (
	"time"

	"github.com/google/uuid"
)

type ReservationEventType string

const (
	EventReservationCreated   ReservationEventType = "reservation.created"
	EventReservationReleased  ReservationEventType = "reservation.released"
	EventReservationExpired   ReservationEventType = "reservation.expired"
	EventReservationPurchased ReservationEventType = "reservation.purchased"
	EventFreeEntryGranted     ReservationEventType = "free_entry.granted"
	EventPaymentConflict      ReservationEventType = "payment.conflict"
)

// ReservationEvent is the audit record emitted for every ticket transition.
type ReservationEvent struct {
	EventID        string               `json:"event_id"`
	Type           ReservationEventType `json:"type"`
	CompetitionID  string               `json:"competition_id"`
	UserID         string               `json:"user_id,omitempty"`
	OrderID        string               `json:"order_id,omitempty"`
	TicketNumbers  []int                `json:"ticket_numbers,omitempty"`
	AvailableCount int                  `json:"available_count"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

// NewReservationEvent stamps a new event with an id and the current time.
func NewReservationEvent(eventType ReservationEventType, competitionID, userID string, numbers []int) ReservationEvent {
	return ReservationEvent{
		EventID:       uuid.NewString(),
		Type:          eventType,
		CompetitionID: competitionID,
		UserID:        userID,
		TicketNumbers: numbers,
		OccurredAt:    time.Now().UTC(),
	}
}
