package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"ms-raffle/internal/config"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOpenOrder(ctx context.Context, competitionID, userID string) (*models.Order, error)
	GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	GetOrdersNeedingReconciliation(ctx context.Context) ([]models.Order, error)
	TransitionOrder(ctx context.Context, order *models.Order, from models.PaymentStatus) error
}

type ReservationReader interface {
	Get(ctx context.Context, competitionID, userID string) (*models.Reservation, error)
}

// Allocator is the slice of the allocation engine that orders drive.
type Allocator interface {
	ConfirmPurchase(ctx context.Context, competitionID, userID string, numbers []int) error
	ReleaseTickets(ctx context.Context, competitionID, userID string, numbers []int) (int, error)
}

type CompetitionReader interface {
	GetCompetition(ctx context.Context, id string) (*models.Competition, error)
}

type KafkaPublisher interface {
	PublishOrder(ctx context.Context, topic string, order models.Order) error
}

type OrderService struct {
	DB           DBLayer
	Reservations ReservationReader
	Allocator    Allocator
	Competitions CompetitionReader
	Kafka        KafkaPublisher
	Topics       config.TopicConfig
	Logger       *logger.Logger
	Now          func() time.Time
}

func NewOrderService(db DBLayer, reservations ReservationReader, allocator Allocator, competitions CompetitionReader, kafka KafkaPublisher, topics config.TopicConfig, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:           db,
		Reservations: reservations,
		Allocator:    allocator,
		Competitions: competitions,
		Kafka:        kafka,
		Topics:       topics,
		Logger:       log,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// ---------------- ORDERS ----------------

// Checkout snapshots the user's live reservation into a PENDING order. Only
// paid tickets are charged; bonus tickets ride along for free. An open order
// for exactly the live cart is returned as is; an open order for any other
// set of tickets is stale and gets cancelled.
func (s *OrderService) Checkout(ctx context.Context, competitionID, userID string) (*models.Order, error) {
	reservation, err := s.Reservations.Get(ctx, competitionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}

	open, err := s.DB.GetOpenOrder(ctx, competitionID, userID)
	if err != nil {
		return nil, fmt.Errorf("look up open order: %w", err)
	}
	if open != nil {
		if reservation != nil && sameNumbers(open.TicketNumbers, reservation.TicketNumbers) {
			return open, nil
		}
		if err := s.transition(ctx, open, models.PaymentCancelled); err != nil {
			return nil, fmt.Errorf("cancel stale order %s: %w", open.OrderID, err)
		}
		s.Logger.LogOrder("STALE", open.OrderID, "tickets no longer match the live reservation")
	}

	if reservation == nil || len(reservation.TicketNumbers) == 0 {
		return nil, models.NewBusinessRuleError(models.ReasonNoActiveReservation, "no active reservation to check out")
	}

	comp, err := s.Competitions.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if comp.Status != models.CompetitionActive {
		return nil, models.NewBusinessRuleError(models.ReasonCompetitionNotActive,
			fmt.Sprintf("competition %s is %s", competitionID, comp.Status))
	}

	now := s.Now()
	order := &models.Order{
		OrderID:       uuid.NewString(),
		CompetitionID: competitionID,
		UserID:        userID,
		TicketNumbers: reservation.TicketNumbers,
		BonusNumbers:  reservation.BonusNumbers,
		Amount:        comp.TicketPrice * float64(reservation.PaidCount()),
		Status:        models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.Logger.LogOrder("CREATED", order.OrderID, fmt.Sprintf("%d tickets, amount %.2f", len(order.TicketNumbers), order.Amount))
	s.publish(ctx, s.Topics.OrderEvents, *order)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError(models.ReasonOrderNotFound, fmt.Sprintf("order %s not found", id))
	}
	return order, err
}

// GetOwnedOrder is GetOrder for a caller who must own the order. Someone
// else's order is reported as missing.
func (s *OrderService) GetOwnedOrder(ctx context.Context, id, userID string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, models.NewNotFoundError(models.ReasonOrderNotFound, fmt.Sprintf("order %s not found", id))
	}
	return order, nil
}

func (s *OrderService) GetOrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.GetOrdersByUser(ctx, userID)
}

func (s *OrderService) ReconciliationQueue(ctx context.Context) ([]models.Order, error) {
	return s.DB.GetOrdersNeedingReconciliation(ctx)
}

// MarkProcessing records that the payment provider has taken the order.
func (s *OrderService) MarkProcessing(ctx context.Context, id, paymentRef string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.PaymentProcessing && order.PaymentRef == paymentRef {
		return order, nil
	}
	order.PaymentRef = paymentRef
	if err := s.transition(ctx, order, models.PaymentProcessing); err != nil {
		return nil, err
	}
	return order, nil
}

// HandlePaymentSucceeded converts the order's reservation into sold tickets.
// When the reservation is already gone the money has still moved: the order
// is recorded as SUCCEEDED, flagged for reconciliation and the
// PaymentConflictError is returned.
func (s *OrderService) HandlePaymentSucceeded(ctx context.Context, id, paymentRef string) error {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Status == models.PaymentSucceeded || order.Status == models.PaymentRefunded {
		// redelivered signal
		return nil
	}
	if paymentRef != "" {
		order.PaymentRef = paymentRef
	}

	if !order.Status.Open() {
		conflict := models.NewPaymentConflictError(order.CompetitionID, order.UserID, order.TicketNumbers,
			fmt.Errorf("payment arrived for %s order", order.Status))
		return s.flagConflict(ctx, order, order.Status, conflict)
	}

	err = s.Allocator.ConfirmPurchase(ctx, order.CompetitionID, order.UserID, order.TicketNumbers)
	if models.IsPaymentConflict(err) {
		return s.flagConflict(ctx, order, models.PaymentSucceeded, err)
	}
	if err != nil {
		return fmt.Errorf("confirm purchase for order %s: %w", id, err)
	}

	if err := s.transition(ctx, order, models.PaymentSucceeded); err != nil {
		return err
	}
	s.Logger.LogOrder("SUCCEEDED", order.OrderID, fmt.Sprintf("%d tickets issued", len(order.TicketNumbers)))
	return nil
}

func (s *OrderService) flagConflict(ctx context.Context, order *models.Order, next models.PaymentStatus, conflict error) error {
	from := order.Status
	order.Status = next
	order.NeedsReconciliation = true
	if err := s.DB.TransitionOrder(ctx, order, from); err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Could not flag order %s for reconciliation: %v", order.OrderID, err))
	}

	s.Logger.Error("PAYMENT", fmt.Sprintf("Order %s paid but tickets not issued: %v", order.OrderID, conflict))
	s.publish(ctx, s.Topics.PaymentConflicts, *order)
	return conflict
}

// HandlePaymentFailed fails the order and gives its tickets back.
func (s *OrderService) HandlePaymentFailed(ctx context.Context, id string) error {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Status == models.PaymentFailed {
		return nil
	}
	if err := s.transition(ctx, order, models.PaymentFailed); err != nil {
		return err
	}
	s.releaseHold(ctx, order)
	return nil
}

// CancelOrder cancels an order that is still waiting for payment and
// releases the reservation behind it. userID must own the order.
func (s *OrderService) CancelOrder(ctx context.Context, id, userID string) (*models.Order, error) {
	order, err := s.GetOwnedOrder(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, order, models.PaymentCancelled); err != nil {
		return nil, err
	}
	s.releaseHold(ctx, order)
	return order, nil
}

// Refund marks a paid order as refunded. Issued tickets stay entered.
func (s *OrderService) Refund(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, order, models.PaymentRefunded); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, order *models.Order, next models.PaymentStatus) error {
	from := order.Status
	if !from.CanTransitionTo(next) {
		return models.NewBusinessRuleError(models.ReasonOrderStateConflict,
			fmt.Sprintf("order %s cannot move from %s to %s", order.OrderID, from, next))
	}
	order.Status = next
	if err := s.DB.TransitionOrder(ctx, order, from); err != nil {
		order.Status = from
		return err
	}
	s.Logger.LogOrder(string(next), order.OrderID, fmt.Sprintf("moved from %s", from))
	s.publish(ctx, s.Topics.OrderEvents, *order)
	return nil
}

// releaseHold gives back the order's own tickets. Anything else in the
// user's cart stays reserved.
func (s *OrderService) releaseHold(ctx context.Context, order *models.Order) {
	if _, err := s.Allocator.ReleaseTickets(ctx, order.CompetitionID, order.UserID, order.TicketNumbers); err != nil {
		s.Logger.Warn("ORDER", fmt.Sprintf("Releasing tickets of order %s failed: %v", order.OrderID, err))
	}
}

func sameNumbers(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]int(nil), a...)
	y := append([]int(nil), b...)
	sort.Ints(x)
	sort.Ints(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func (s *OrderService) publish(ctx context.Context, topic string, order models.Order) {
	if s.Kafka == nil || topic == "" {
		return
	}
	if err := s.Kafka.PublishOrder(ctx, topic, order); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Kafka publish error (order %s): %v", order.OrderID, err))
	}
}
