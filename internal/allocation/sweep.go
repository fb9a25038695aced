package allocation

import (
	"context"
	"fmt"
	"time"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	reservationstore "ms-raffle/internal/reservation/redis"
)

type ExpiredReleaser interface {
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}

type ExpiryIndex interface {
	PopExpired(ctx context.Context, now time.Time) ([]reservationstore.Key, error)
}

// Sweeper returns lapsed reservations to the pool on a fixed schedule. Lazy
// expiry already makes lapsed tickets biddable; the sweep makes the stored
// state catch up and reports each expiry.
type Sweeper struct {
	Pool     ExpiredReleaser
	Index    ExpiryIndex
	Audit    AuditSink
	Logger   *logger.Logger
	Interval time.Duration
	Now      func() time.Time

	kick chan struct{}
}

func NewSweeper(pool ExpiredReleaser, index ExpiryIndex, audit AuditSink, log *logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		Pool:     pool,
		Index:    index,
		Audit:    audit,
		Logger:   log,
		Interval: interval,
		Now:      func() time.Time { return time.Now().UTC() },
		kick:     make(chan struct{}, 1),
	}
}

// Run sweeps every Interval and whenever Trigger is called, until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.LogProcess("SWEEP", fmt.Sprintf("Reservation sweep started, interval %s", s.Interval))
	for {
		select {
		case <-ctx.Done():
			s.Logger.LogProcess("SWEEP", "Reservation sweep stopped")
			return
		case <-ticker.C:
		case <-s.kick:
		}
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("Sweep failed: %v", err))
		}
	}
}

// Trigger asks for a prompt pass without blocking; extra requests coalesce.
func (s *Sweeper) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// OnExpired adapts Trigger to the store's expiry notification callback.
func (s *Sweeper) OnExpired(reservationstore.Key) {
	s.Trigger()
}

// SweepOnce releases lapsed holds and reports the expired reservations. It
// only frees tickets whose deadline has passed, so a fresh hold taken over an
// expired one is never touched.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.Now().UTC()

	released, err := s.Pool.ReleaseExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	var expired []reservationstore.Key
	if s.Index != nil {
		expired, err = s.Index.PopExpired(ctx, now)
		if err != nil {
			s.Logger.Warn("SWEEP", fmt.Sprintf("Expiry index unavailable: %v", err))
		}
	}
	for _, key := range expired {
		event := models.NewReservationEvent(models.EventReservationExpired, key.CompetitionID, key.UserID, nil)
		if s.Audit != nil {
			s.Audit.Emit(ctx, event)
		}
		s.Logger.LogReservation("EXPIRED", key.CompetitionID, key.UserID, "reservation lapsed")
	}

	if released > 0 || len(expired) > 0 {
		s.Logger.Info("SWEEP", fmt.Sprintf("Released %d tickets from %d expired reservations", released, len(expired)))
	}
	return released, nil
}
