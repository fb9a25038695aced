package allocation

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

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// TicketPool is the authoritative ticket state. Every transition is one
// all-or-nothing transaction.
type TicketPool interface {
	GetAvailableCount(ctx context.Context, competitionID string, now time.Time) (int, error)
	MarkReserved(ctx context.Context, competitionID string, numbers []int, userID string, until, now time.Time) error
	MarkSold(ctx context.Context, competitionID string, numbers []int, userID string, now time.Time) error
	MarkFreeEntry(ctx context.Context, competitionID string, numbers []int, userID string, now time.Time) error
	ReleaseOwned(ctx context.Context, competitionID, userID string, numbers []int, now time.Time) (int, error)
	SelectAvailable(ctx context.Context, competitionID string, quantity int, now time.Time) ([]int, error)
	Unavailable(ctx context.Context, competitionID string, numbers []int, userID string, now time.Time) ([]int, error)
	HeldBy(ctx context.Context, competitionID, userID string, now time.Time) ([]int, error)
	CountOwned(ctx context.Context, competitionID, userID string, now time.Time) (int, error)
	Tally(ctx context.Context, competitionID string, now time.Time) (models.Tally, error)
	Entries(ctx context.Context, competitionID string) ([]models.Ticket, error)
	IncrementTicketCount(ctx context.Context, competitionID string, n int, at time.Time) error
}

// ReservationStore is the advisory, time-boxed index of carts.
type ReservationStore interface {
	Put(ctx context.Context, competitionID, userID string, numbers, bonus []int, ttl time.Duration) (time.Time, error)
	Get(ctx context.Context, competitionID, userID string) (*models.Reservation, error)
	Remove(ctx context.Context, competitionID, userID string) error
	LockCart(ctx context.Context, competitionID, userID, token string, ttl time.Duration) (bool, error)
	UnlockCart(ctx context.Context, competitionID, userID, token string) error
}

type CompetitionRegistry interface {
	GetCompetition(ctx context.Context, id string) (*models.Competition, error)
	TransitionStatus(ctx context.Context, id string, next models.CompetitionStatus) error
}

// AuditSink receives every ticket transition. Emit must not block on
// delivery and its failures never undo a transition.
type AuditSink interface {
	Emit(ctx context.Context, event models.ReservationEvent)
}

type Options struct {
	TTL          time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	BonusTiers   []config.BonusTier
	CartLockTTL  time.Duration
	CartLockWait time.Duration
}

func OptionsFromConfig(cfg config.ReservationConfig) Options {
	return Options{
		TTL:         cfg.TTL,
		MaxAttempts: cfg.MaxAttempts,
		BonusTiers:  cfg.BonusTiers,
	}
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 15 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 10 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 200 * time.Millisecond
	}
	if o.CartLockTTL <= 0 {
		o.CartLockTTL = 10 * time.Second
	}
	if o.CartLockWait <= 0 {
		o.CartLockWait = 2 * time.Second
	}
	return o
}

// Engine is the only writer path from "user wants N tickets" to a reserved set.
type Engine struct {
	Pool         TicketPool
	Store        ReservationStore
	Competitions CompetitionRegistry
	Audit        AuditSink
	Logger       *logger.Logger
	Options      Options
	Now          func() time.Time
}

func NewEngine(pool TicketPool, store ReservationStore, competitions CompetitionRegistry, audit AuditSink, log *logger.Logger, opts Options) *Engine {
	return &Engine{
		Pool:         pool,
		Store:        store,
		Competitions: competitions,
		Audit:        audit,
		Logger:       log,
		Options:      opts.withDefaults(),
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) now() time.Time {
	return e.Now().UTC()
}

// applyFunc performs the pool transition for one selection attempt.
type applyFunc func(ctx context.Context, selected []int, now time.Time) error

// Reserve validates a request, picks ticket numbers and holds them for the
// user, then adds any bonus tickets the purchase quantity earns. The user's
// existing hold is carried forward so they keep a single cart with one expiry.
func (e *Engine) Reserve(ctx context.Context, competitionID, userID string, req models.ReserveRequest) (*models.ReserveResult, error) {
	explicit := len(req.TicketNumbers) > 0
	if explicit && req.Quantity != 0 {
		return nil, models.NewValidationError(models.ReasonInvalidQuantity, "provide either a quantity or ticket numbers, not both")
	}
	if !explicit && req.Quantity <= 0 {
		return nil, models.NewValidationError(models.ReasonInvalidQuantity, "quantity must be greater than zero")
	}

	comp, err := e.activeCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if explicit {
		if err := validateNumbers(req.TicketNumbers, comp.TotalTickets); err != nil {
			return nil, err
		}
	}

	unlock, err := e.lockCart(ctx, competitionID, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.now()
	held, err := e.Pool.HeldBy(ctx, competitionID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("load held tickets: %w", err)
	}

	var wanted []int
	requested := req.Quantity
	if explicit {
		wanted = difference(normalize(req.TicketNumbers), held)
		requested = len(wanted)
	}

	if err := e.checkLimit(ctx, comp, userID, requested, now); err != nil {
		return nil, err
	}

	until := now.Add(e.Options.TTL)
	reserveApply := func(ctx context.Context, selected []int, now time.Time) error {
		current, err := e.Pool.HeldBy(ctx, competitionID, userID, now)
		if err != nil {
			return err
		}
		return e.Pool.MarkReserved(ctx, competitionID, union(current, selected), userID, until, now)
	}

	paid, err := e.allocate(ctx, comp, userID, requested, wanted, explicit, reserveApply)
	if err != nil {
		e.Logger.LogReservation("REJECTED", competitionID, userID, err.Error())
		return nil, err
	}

	result := &models.ReserveResult{CompetitionID: competitionID}

	bonus := e.carriedBonus(ctx, competitionID, userID, held)
	if earned := BonusFor(requested, e.Options.BonusTiers); earned > 0 {
		extra, err := e.allocate(ctx, comp, userID, earned, nil, false, reserveApply)
		if err != nil {
			// The paid tickets stay reserved.
			e.Logger.Warn("RESERVE", fmt.Sprintf("Bonus of %d tickets missed for %s/%s: %v", earned, competitionID, userID, err))
			result.BonusMissed = earned
		} else {
			bonus = union(bonus, extra)
		}
	}

	cart, err := e.Pool.HeldBy(ctx, competitionID, userID, e.now())
	if err != nil {
		return nil, fmt.Errorf("load reserved tickets: %w", err)
	}
	bonus = intersect(bonus, cart)

	result.TicketNumbers = cart
	result.BonusNumbers = bonus
	result.ExpiresAt = e.putReservation(ctx, competitionID, userID, cart, bonus, until)

	e.Logger.LogReservation("CREATED", competitionID, userID,
		fmt.Sprintf("%d paid, %d bonus, cart of %d until %s", len(paid), len(bonus), len(cart), result.ExpiresAt.Format(time.RFC3339)))

	event := e.event(ctx, models.EventReservationCreated, competitionID, userID, cart)
	event.ExpiresAt = &result.ExpiresAt
	e.emit(ctx, event)

	return result, nil
}

// allocate runs the Selecting/Committing loop with a fresh snapshot per
// attempt. Explicit numbers are used verbatim; otherwise the lowest biddable
// numbers are taken.
func (e *Engine) allocate(ctx context.Context, comp *models.Competition, userID string, quantity int, numbers []int, explicit bool, apply applyFunc) ([]int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.Options.BackoffBase
	b.MaxInterval = e.Options.BackoffMax
	b.MaxElapsedTime = 0
	b.Reset()

	for attempt := 1; ; attempt++ {
		now := e.now()

		var selected []int
		if explicit {
			taken, err := e.Pool.Unavailable(ctx, comp.ID, numbers, userID, now)
			if err != nil {
				return nil, err
			}
			if len(taken) > 0 {
				return nil, ticketsUnavailable(taken)
			}
			selected = numbers
		} else {
			available, err := e.Pool.GetAvailableCount(ctx, comp.ID, now)
			if err != nil {
				return nil, err
			}
			if available < quantity {
				return nil, soldOut(available, quantity)
			}
			selected, err = e.Pool.SelectAvailable(ctx, comp.ID, quantity, now)
			if err != nil {
				return nil, err
			}
			if len(selected) < quantity {
				return nil, soldOut(len(selected), quantity)
			}
		}

		err := apply(ctx, selected, now)
		if err == nil {
			return selected, nil
		}
		if !models.IsConflict(err) {
			return nil, err
		}
		if attempt >= e.Options.MaxAttempts {
			break
		}

		wait := b.NextBackOff()
		e.Logger.Debug("RESERVE", fmt.Sprintf("Conflict on %s attempt %d, retrying in %s: %v", comp.ID, attempt, wait, err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	if explicit {
		taken, err := e.Pool.Unavailable(ctx, comp.ID, numbers, userID, e.now())
		if err == nil && len(taken) > 0 {
			return nil, ticketsUnavailable(taken)
		}
		return nil, ticketsUnavailable(numbers)
	}
	available, err := e.Pool.GetAvailableCount(ctx, comp.ID, e.now())
	if err == nil && available < quantity {
		return nil, soldOut(available, quantity)
	}
	return nil, models.NewBusinessRuleError(models.ReasonContention,
		fmt.Sprintf("could not secure %d tickets after %d attempts", quantity, e.Options.MaxAttempts))
}

// Release drops the user's whole cart. Releasing nothing is not an error.
func (e *Engine) Release(ctx context.Context, competitionID, userID string) (int, error) {
	unlock, err := e.lockCart(ctx, competitionID, userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := e.now()
	held, err := e.Pool.HeldBy(ctx, competitionID, userID, now)
	if err != nil {
		return 0, fmt.Errorf("load held tickets: %w", err)
	}
	numbers := held
	if r, err := e.Store.Get(ctx, competitionID, userID); err != nil {
		e.Logger.Warn("RESERVE", fmt.Sprintf("Reservation lookup failed for %s/%s: %v", competitionID, userID, err))
	} else if r != nil {
		numbers = union(numbers, r.TicketNumbers)
	}

	released, err := e.Pool.ReleaseOwned(ctx, competitionID, userID, numbers, now)
	if err != nil {
		return 0, err
	}
	if err := e.Store.Remove(ctx, competitionID, userID); err != nil {
		e.Logger.Warn("RESERVE", fmt.Sprintf("Reservation removal failed for %s/%s: %v", competitionID, userID, err))
	}
	if released == 0 {
		return 0, nil
	}

	e.Logger.LogReservation("RELEASED", competitionID, userID, fmt.Sprintf("%d tickets returned to the pool", released))
	e.emit(ctx, e.event(ctx, models.EventReservationReleased, competitionID, userID, numbers))
	return released, nil
}

// ReleaseTickets gives back only the listed numbers of the user's hold. The
// rest of the cart keeps its reservation and expiry.
func (e *Engine) ReleaseTickets(ctx context.Context, competitionID, userID string, numbers []int) (int, error) {
	numbers = normalize(numbers)
	if len(numbers) == 0 {
		return 0, nil
	}
	unlock, err := e.lockCart(ctx, competitionID, userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	released, err := e.Pool.ReleaseOwned(ctx, competitionID, userID, numbers, e.now())
	if err != nil {
		return 0, err
	}

	if r, err := e.Store.Get(ctx, competitionID, userID); err != nil {
		e.Logger.Warn("RESERVE", fmt.Sprintf("Reservation lookup failed for %s/%s: %v", competitionID, userID, err))
	} else if r != nil {
		remaining := difference(normalize(r.TicketNumbers), numbers)
		if len(remaining) == 0 {
			if err := e.Store.Remove(ctx, competitionID, userID); err != nil {
				e.Logger.Warn("RESERVE", fmt.Sprintf("Reservation removal failed for %s/%s: %v", competitionID, userID, err))
			}
		} else if len(remaining) < len(r.TicketNumbers) {
			e.putReservation(ctx, competitionID, userID, remaining, intersect(r.BonusNumbers, remaining), r.ExpiresAt)
		}
	}
	if released == 0 {
		return 0, nil
	}

	e.Logger.LogReservation("RELEASED", competitionID, userID, fmt.Sprintf("%d of the held tickets returned to the pool", released))
	e.emit(ctx, e.event(ctx, models.EventReservationReleased, competitionID, userID, numbers))
	return released, nil
}

// GetStatus reports pool availability and, when userID is set, the user's
// live reservation.
func (e *Engine) GetStatus(ctx context.Context, competitionID, userID string) (*models.CompetitionStatusView, error) {
	comp, err := e.competition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	tally, err := e.Pool.Tally(ctx, competitionID, e.now())
	if err != nil {
		return nil, fmt.Errorf("tally tickets: %w", err)
	}

	view := &models.CompetitionStatusView{
		CompetitionID:  competitionID,
		Status:         comp.Status,
		TotalTickets:   comp.TotalTickets,
		AvailableCount: tally.Available,
		Tally:          tally,
	}
	if userID != "" {
		r, err := e.Store.Get(ctx, competitionID, userID)
		if err != nil {
			e.Logger.Warn("RESERVE", fmt.Sprintf("Reservation lookup failed for %s/%s: %v", competitionID, userID, err))
		}
		view.UserReservation = r
	}
	return view, nil
}

// ConfirmPurchase turns a paid-for hold into sold tickets. Money has already
// moved, so a hold that is gone or expired, or a competition that no longer
// sells, yields a PaymentConflictError.
func (e *Engine) ConfirmPurchase(ctx context.Context, competitionID, userID string, numbers []int) error {
	now := e.now()
	if len(numbers) == 0 {
		return models.NewPaymentConflictError(competitionID, userID, nil, errors.New("no tickets to confirm"))
	}

	comp, err := e.competition(ctx, competitionID)
	if err != nil {
		return err
	}
	if comp.Status != models.CompetitionActive && comp.Status != models.CompetitionSoldOut {
		payErr := models.NewPaymentConflictError(competitionID, userID, numbers,
			fmt.Errorf("competition %s is %s", competitionID, comp.Status))
		e.Logger.Error("PAYMENT", payErr.Error())
		e.emit(ctx, e.event(ctx, models.EventPaymentConflict, competitionID, userID, numbers))
		return payErr
	}

	err = e.Pool.MarkSold(ctx, competitionID, numbers, userID, now)
	if models.IsConflict(err) {
		var conflict *models.RaffleError
		errors.As(err, &conflict)
		payErr := models.NewPaymentConflictError(competitionID, userID, conflict.TicketNumbers, err)
		e.Logger.Error("PAYMENT", payErr.Error())
		e.emit(ctx, e.event(ctx, models.EventPaymentConflict, competitionID, userID, numbers))
		return payErr
	}
	if err != nil {
		return err
	}

	if err := e.Store.Remove(ctx, competitionID, userID); err != nil {
		e.Logger.Warn("RESERVE", fmt.Sprintf("Reservation removal failed for %s/%s: %v", competitionID, userID, err))
	}
	if err := e.Pool.IncrementTicketCount(ctx, competitionID, len(numbers), now); err != nil {
		e.Logger.Warn("DATABASE", fmt.Sprintf("Daily ticket count not updated for %s: %v", competitionID, err))
	}

	e.Logger.LogReservation("PURCHASED", competitionID, userID, fmt.Sprintf("%d tickets sold", len(numbers)))
	e.emit(ctx, e.event(ctx, models.EventReservationPurchased, competitionID, userID, numbers))
	e.closeIfSoldOut(ctx, competitionID)
	return nil
}

// GrantFreeEntry allocates no-cost entries. They count against the per-user
// limit and go through the same selection loop as paid tickets.
func (e *Engine) GrantFreeEntry(ctx context.Context, competitionID, userID string, quantity int) ([]int, error) {
	if quantity <= 0 {
		return nil, models.NewValidationError(models.ReasonInvalidQuantity, "quantity must be greater than zero")
	}
	comp, err := e.activeCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockCart(ctx, competitionID, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := e.checkLimit(ctx, comp, userID, quantity, e.now()); err != nil {
		return nil, err
	}

	numbers, err := e.allocate(ctx, comp, userID, quantity, nil, false, func(ctx context.Context, selected []int, now time.Time) error {
		return e.Pool.MarkFreeEntry(ctx, competitionID, selected, userID, now)
	})
	if err != nil {
		e.Logger.LogReservation("REJECTED", competitionID, userID, err.Error())
		return nil, err
	}

	e.Logger.LogReservation("FREE_ENTRY", competitionID, userID, fmt.Sprintf("%d free entries granted", len(numbers)))
	e.emit(ctx, e.event(ctx, models.EventFreeEntryGranted, competitionID, userID, numbers))
	e.closeIfSoldOut(ctx, competitionID)
	return numbers, nil
}

// DrawEntries lists the finalized tickets that take part in the draw.
func (e *Engine) DrawEntries(ctx context.Context, competitionID string) ([]models.Ticket, error) {
	return e.Pool.Entries(ctx, competitionID)
}

func (e *Engine) competition(ctx context.Context, competitionID string) (*models.Competition, error) {
	comp, err := e.Competitions.GetCompetition(ctx, competitionID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && comp == nil) {
		return nil, models.NewNotFoundError(models.ReasonCompetitionNotFound, fmt.Sprintf("competition %s not found", competitionID))
	}
	if err != nil {
		return nil, fmt.Errorf("load competition %s: %w", competitionID, err)
	}
	return comp, nil
}

func (e *Engine) activeCompetition(ctx context.Context, competitionID string) (*models.Competition, error) {
	comp, err := e.competition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if comp.Status != models.CompetitionActive {
		return nil, models.NewBusinessRuleError(models.ReasonCompetitionNotActive,
			fmt.Sprintf("competition %s is %s", competitionID, comp.Status))
	}
	return comp, nil
}

// checkLimit counts live holds, sold and free tickets, bonus included.
func (e *Engine) checkLimit(ctx context.Context, comp *models.Competition, userID string, requested int, now time.Time) error {
	owned, err := e.Pool.CountOwned(ctx, comp.ID, userID, now)
	if err != nil {
		return fmt.Errorf("count owned tickets: %w", err)
	}
	if owned+requested > comp.UserLimit() {
		return models.NewBusinessRuleError(models.ReasonLimitExceeded,
			fmt.Sprintf("limit is %d tickets per user, %d already owned", comp.UserLimit(), owned))
	}
	return nil
}

// lockCart waits for the per-user cart lock. A store outage degrades to
// running without it since the pool still guards every ticket.
func (e *Engine) lockCart(ctx context.Context, competitionID, userID string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(e.Options.CartLockWait)
	for {
		ok, err := e.Store.LockCart(ctx, competitionID, userID, token, e.Options.CartLockTTL)
		if err != nil {
			e.Logger.Warn("REDIS", fmt.Sprintf("Cart lock unavailable for %s/%s: %v", competitionID, userID, err))
			return func() {}, nil
		}
		if ok {
			return func() {
				if err := e.Store.UnlockCart(context.Background(), competitionID, userID, token); err != nil {
					e.Logger.Warn("REDIS", fmt.Sprintf("Cart unlock failed for %s/%s: %v", competitionID, userID, err))
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, models.NewBusinessRuleError(models.ReasonContention, "another request for this cart is in progress")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (e *Engine) carriedBonus(ctx context.Context, competitionID, userID string, held []int) []int {
	if len(held) == 0 {
		return nil
	}
	r, err := e.Store.Get(ctx, competitionID, userID)
	if err != nil || r == nil {
		return nil
	}
	return intersect(r.BonusNumbers, held)
}

func (e *Engine) putReservation(ctx context.Context, competitionID, userID string, cart, bonus []int, until time.Time) time.Time {
	ttl := until.Sub(e.now())
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	expiresAt, err := e.Store.Put(ctx, competitionID, userID, cart, bonus, ttl)
	if err != nil {
		e.Logger.Warn("REDIS", fmt.Sprintf("Reservation index not updated for %s/%s: %v", competitionID, userID, err))
		return until
	}
	return expiresAt
}

func (e *Engine) closeIfSoldOut(ctx context.Context, competitionID string) {
	comp, err := e.Competitions.GetCompetition(ctx, competitionID)
	if err != nil || comp == nil || comp.Status != models.CompetitionActive {
		return
	}
	tally, err := e.Pool.Tally(ctx, competitionID, e.now())
	if err != nil {
		e.Logger.Warn("DATABASE", fmt.Sprintf("Tally failed for %s: %v", competitionID, err))
		return
	}
	if tally.Sold+tally.FreeEntry < comp.TotalTickets {
		return
	}
	if err := e.Competitions.TransitionStatus(ctx, competitionID, models.CompetitionSoldOut); err != nil {
		e.Logger.Warn("COMPETITION", fmt.Sprintf("Could not mark %s sold out: %v", competitionID, err))
		return
	}
	e.Logger.Info("COMPETITION", fmt.Sprintf("Competition %s sold out", competitionID))
}

func (e *Engine) event(ctx context.Context, eventType models.ReservationEventType, competitionID, userID string, numbers []int) models.ReservationEvent {
	event := models.NewReservationEvent(eventType, competitionID, userID, numbers)
	if available, err := e.Pool.GetAvailableCount(ctx, competitionID, e.now()); err == nil {
		event.AvailableCount = available
	}
	return event
}

func (e *Engine) emit(ctx context.Context, event models.ReservationEvent) {
	if e.Audit == nil {
		return
	}
	e.Audit.Emit(ctx, event)
}

func validateNumbers(numbers []int, total int) error {
	seen := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > total {
			return models.NewValidationError(models.ReasonInvalidTicketNumber,
				fmt.Sprintf("ticket number %d is outside 1..%d", n, total))
		}
		if _, dup := seen[n]; dup {
			return models.NewValidationError(models.ReasonInvalidTicketNumber,
				fmt.Sprintf("ticket number %d requested twice", n))
		}
		seen[n] = struct{}{}
	}
	return nil
}

func soldOut(available, wanted int) error {
	return models.NewBusinessRuleError(models.ReasonSoldOut,
		fmt.Sprintf("only %d tickets available, %d requested", available, wanted))
}

func ticketsUnavailable(numbers []int) error {
	err := models.NewBusinessRuleError(models.ReasonTicketsUnavailable, fmt.Sprintf("tickets %v are not available", numbers))
	err.TicketNumbers = numbers
	return err
}

func normalize(numbers []int) []int {
	out := append([]int(nil), numbers...)
	sort.Ints(out)
	j := 0
	for i, n := range out {
		if i == 0 || n != out[j-1] {
			out[j] = n
			j++
		}
	}
	return out[:j]
}

func union(a, b []int) []int {
	return normalize(append(append([]int(nil), a...), b...))
}

func difference(a, b []int) []int {
	drop := make(map[int]struct{}, len(b))
	for _, n := range b {
		drop[n] = struct{}{}
	}
	var out []int
	for _, n := range a {
		if _, ok := drop[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

func intersect(a, b []int) []int {
	keep := make(map[int]struct{}, len(b))
	for _, n := range b {
		keep[n] = struct{}{}
	}
	var out []int
	for _, n := range normalize(a) {
		if _, ok := keep[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
