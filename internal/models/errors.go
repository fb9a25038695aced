package models

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCategory string

const (
	CategoryValidation      ErrorCategory = "validation"
	CategoryBusinessRule    ErrorCategory = "business_rule"
	CategoryConflict        ErrorCategory = "conflict"
	CategoryPaymentConflict ErrorCategory = "payment_conflict"
	CategoryNotFound        ErrorCategory = "not_found"
)

type Reason string

const (
	ReasonInvalidQuantity      Reason = "INVALID_QUANTITY"
	ReasonInvalidTicketNumber  Reason = "INVALID_TICKET_NUMBER"
	ReasonInvalidCompetition   Reason = "INVALID_COMPETITION"
	ReasonInvalidTransition    Reason = "INVALID_TRANSITION"
	ReasonCompetitionNotActive Reason = "COMPETITION_NOT_ACTIVE"
	ReasonLimitExceeded        Reason = "LIMIT_EXCEEDED"
	ReasonSoldOut              Reason = "SOLD_OUT"
	ReasonTicketsUnavailable   Reason = "TICKETS_UNAVAILABLE"
	ReasonContention           Reason = "CONTENTION"
	ReasonTicketConflict       Reason = "TICKET_CONFLICT"
	ReasonReservationNotHeld   Reason = "RESERVATION_NOT_HELD"
	ReasonCompetitionNotFound  Reason = "COMPETITION_NOT_FOUND"
	ReasonOrderNotFound        Reason = "ORDER_NOT_FOUND"
	ReasonNoActiveReservation  Reason = "NO_ACTIVE_RESERVATION"
	ReasonOrderStateConflict   Reason = "ORDER_STATE_CONFLICT"
	ReasonNoEntries            Reason = "NO_ENTRIES"
)

// RaffleError carries a category and reason code so that transports can map
// it without string matching. Message is safe to show to clients.
type RaffleError struct {
	Category      ErrorCategory
	Reason        Reason
	StatusCode    int
	Message       string
	TicketNumbers []int
	Err           error
}

func (e *RaffleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *RaffleError) Unwrap() error {
	return e.Err
}

func NewValidationError(reason Reason, msg string) *RaffleError {
	return &RaffleError{Category: CategoryValidation, Reason: reason, StatusCode: http.StatusBadRequest, Message: msg}
}

func NewBusinessRuleError(reason Reason, msg string) *RaffleError {
	return &RaffleError{Category: CategoryBusinessRule, Reason: reason, StatusCode: http.StatusConflict, Message: msg}
}

// NewConflictError reports that a ticket batch lost a race; numbers lists the
// tickets that were not in the expected state.
func NewConflictError(numbers []int) *RaffleError {
	return &RaffleError{
		Category:      CategoryConflict,
		Reason:        ReasonTicketConflict,
		StatusCode:    http.StatusConflict,
		Message:       "tickets changed state concurrently",
		TicketNumbers: numbers,
	}
}

// NewPaymentConflictError is raised when money has moved but the reservation
// it paid for is gone. It must always reach reconciliation.
func NewPaymentConflictError(competitionID, userID string, numbers []int, cause error) *RaffleError {
	return &RaffleError{
		Category:      CategoryPaymentConflict,
		Reason:        ReasonReservationNotHeld,
		StatusCode:    http.StatusConflict,
		Message:       fmt.Sprintf("reservation of user %s in competition %s is no longer valid", userID, competitionID),
		TicketNumbers: numbers,
		Err:           cause,
	}
}

func NewNotFoundError(reason Reason, msg string) *RaffleError {
	return &RaffleError{Category: CategoryNotFound, Reason: reason, StatusCode: http.StatusNotFound, Message: msg}
}

// ErrorReason returns the reason code of err, or "" when err is not a RaffleError.
func ErrorReason(err error) Reason {
	var re *RaffleError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

func IsCategory(err error, category ErrorCategory) bool {
	var re *RaffleError
	return errors.As(err, &re) && re.Category == category
}

func IsConflict(err error) bool {
	return IsCategory(err, CategoryConflict)
}

func IsPaymentConflict(err error) bool {
	return IsCategory(err, CategoryPaymentConflict)
}
