package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing, PaymentSucceeded, PaymentFailed, PaymentCancelled},
	PaymentProcessing: {PaymentSucceeded, PaymentFailed, PaymentCancelled},
	PaymentSucceeded:  {PaymentRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Open reports whether the order still waits for a payment outcome.
func (s PaymentStatus) Open() bool {
	return s == PaymentPending || s == PaymentProcessing
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID             string        `bun:"order_id,pk" json:"order_id"`
	CompetitionID       string        `bun:"competition_id,notnull" json:"competition_id"`
	UserID              string        `bun:"user_id,notnull" json:"user_id"`
	TicketNumbers       []int         `bun:"ticket_numbers,type:jsonb" json:"ticket_numbers"`
	BonusNumbers        []int         `bun:"bonus_numbers,type:jsonb" json:"bonus_numbers,omitempty"`
	Amount              float64       `bun:"amount" json:"amount"`
	Status              PaymentStatus `bun:"status,notnull" json:"status"`
	PaymentRef          string        `bun:"payment_ref,nullzero" json:"payment_ref,omitempty"`
	NeedsReconciliation bool          `bun:"needs_reconciliation" json:"needs_reconciliation"`
	CreatedAt           time.Time     `bun:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `bun:"updated_at,nullzero" json:"updated_at"`
}

// PaymentSignal is the message the payment collaborator publishes when a
// payment reaches an outcome.
type PaymentSignal struct {
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_ref,omitempty"`
}
