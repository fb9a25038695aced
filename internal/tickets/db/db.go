package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ms-raffle/internal/models"

	"github.com/uptrace/bun"
)

// seedBatchSize bounds the size of a single INSERT when a pool is created.
const seedBatchSize = 1000

// biddableClause matches tickets that can be taken at a given instant: free
// tickets and reservations whose deadline has passed.
const biddableClause = "(status = ? OR (status = ? AND reserved_until <= ?))"

// DB is the authoritative ticket pool. Every state change goes through one of
// the Mark*/Release* methods, each a single transaction whose UPDATE is
// guarded by the expected prior status and rolled back unless it touched the
// whole batch.
type DB struct {
	Bun *bun.DB
}

// Seed creates tickets 1..total as AVAILABLE for a competition.
func (d *DB) Seed(ctx context.Context, competitionID string, total int, now time.Time) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 1; start <= total; start += seedBatchSize {
			end := start + seedBatchSize - 1
			if end > total {
				end = total
			}
			batch := make([]models.Ticket, 0, end-start+1)
			for n := start; n <= end; n++ {
				batch = append(batch, models.Ticket{
					CompetitionID: competitionID,
					TicketNumber:  n,
					Status:        models.TicketAvailable,
					UpdatedAt:     now.UTC(),
				})
			}
			if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
				return fmt.Errorf("seed tickets %d-%d of %s: %w", start, end, competitionID, err)
			}
		}
		return nil
	})
}

// GetAvailableCount counts AVAILABLE tickets plus expired reservations.
func (d *DB) GetAvailableCount(ctx context.Context, competitionID string, now time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("competition_id = ?", competitionID).
		Where(biddableClause, models.TicketAvailable, models.TicketReserved, now.UTC()).
		Count(ctx)
}

// MarkReserved moves every number to RESERVED for userID until the given
// deadline. Tickets already reserved by the same user are refreshed, so a
// cart can be extended in one step. If any number is held by someone else,
// sold or unknown, nothing changes and a ConflictError is returned.
func (d *DB) MarkReserved(ctx context.Context, competitionID string, numbers []int, userID string, until, now time.Time) error {
	numbers = normalize(numbers)
	if len(numbers) == 0 {
		return nil
	}
	now, until = now.UTC(), until.UTC()

	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketReserved).
			Set("user_id = ?", userID).
			Set("reserved_until = ?", until).
			Set("updated_at = ?", now).
			Where("competition_id = ?", competitionID).
			Where("ticket_number IN (?)", bun.In(numbers)).
			Where("("+biddableClause+" OR (status = ? AND user_id = ?))",
				models.TicketAvailable, models.TicketReserved, now, models.TicketReserved, userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("reserve tickets in %s: %w", competitionID, err)
		}
		if err := expectAll(res, len(numbers)); err != nil {
			conflicted, lookupErr := unavailable(ctx, tx, competitionID, numbers, userID, now)
			if lookupErr != nil {
				return lookupErr
			}
			return models.NewConflictError(conflicted)
		}
		return nil
	})
}

// MarkSold converts the user's live reservation on numbers into sold tickets.
// It fails with a ConflictError when any of them expired, was released or
// belongs to another user.
func (d *DB) MarkSold(ctx context.Context, competitionID string, numbers []int, userID string, now time.Time) error {
	numbers = normalize(numbers)
	if len(numbers) == 0 {
		return models.NewValidationError(models.ReasonInvalidQuantity, "no tickets to sell")
	}
	now = now.UTC()

	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketSold).
			Set("reserved_until = NULL").
			Set("updated_at = ?", now).
			Where("competition_id = ?", competitionID).
			Where("ticket_number IN (?)", bun.In(numbers)).
			Where("status = ?", models.TicketReserved).
			Where("user_id = ?", userID).
			Where("reserved_until > ?", now).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sell tickets in %s: %w", competitionID, err)
		}
		if err := expectAll(res, len(numbers)); err != nil {
			held, lookupErr := heldBy(ctx, tx, competitionID, userID, now)
			if lookupErr != nil {
				return lookupErr
			}
			return models.NewConflictError(difference(numbers, held))
		}
		return nil
	})
}

// MarkFreeEntry assigns biddable numbers to userID through the free entry route.
func (d *DB) MarkFreeEntry(ctx context.Context, competitionID string, numbers []int, userID string, now time.Time) error {
	numbers = normalize(numbers)
	if len(numbers) == 0 {
		return nil
	}
	now = now.UTC()

	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketFreeEntry).
			Set("user_id = ?", userID).
			Set("reserved_until = NULL").
			Set("updated_at = ?", now).
			Where("competition_id = ?", competitionID).
			Where("ticket_number IN (?)", bun.In(numbers)).
			Where(biddableClause, models.TicketAvailable, models.TicketReserved, now).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("free entry in %s: %w", competitionID, err)
		}
		if err := expectAll(res, len(numbers)); err != nil {
			conflicted, lookupErr := unavailable(ctx, tx, competitionID, numbers, "", now)
			if lookupErr != nil {
				return lookupErr
			}
			return models.NewConflictError(conflicted)
		}
		return nil
	})
}

// Release returns reserved numbers to the pool whoever holds them. Sold and
// free entry tickets are never touched; releasing twice is a no-op.
func (d *DB) Release(ctx context.Context, competitionID string, numbers []int, now time.Time) (int, error) {
	return d.release(ctx, competitionID, "", normalize(numbers), now.UTC())
}

// ReleaseOwned is Release restricted to tickets reserved by userID.
func (d *DB) ReleaseOwned(ctx context.Context, competitionID, userID string, numbers []int, now time.Time) (int, error) {
	return d.release(ctx, competitionID, userID, normalize(numbers), now.UTC())
}

func (d *DB) release(ctx context.Context, competitionID, userID string, numbers []int, now time.Time) (int, error) {
	if len(numbers) == 0 {
		return 0, nil
	}
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketAvailable).
		Set("user_id = NULL").
		Set("reserved_until = NULL").
		Set("updated_at = ?", now).
		Where("competition_id = ?", competitionID).
		Where("ticket_number IN (?)", bun.In(numbers)).
		Where("status = ?", models.TicketReserved)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("release tickets in %s: %w", competitionID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ReleaseExpired frees every reservation whose deadline is at or before now,
// across all competitions.
func (d *DB) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketAvailable).
		Set("user_id = NULL").
		Set("reserved_until = NULL").
		Set("updated_at = ?", now.UTC()).
		Where("status = ?", models.TicketReserved).
		Where("reserved_until <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("release expired reservations: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SelectAvailable returns up to quantity biddable numbers, lowest first.
func (d *DB) SelectAvailable(ctx context.Context, competitionID string, quantity int, now time.Time) ([]int, error) {
	if quantity <= 0 {
		return nil, nil
	}
	var numbers []int
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("ticket_number").
		Where("competition_id = ?", competitionID).
		Where(biddableClause, models.TicketAvailable, models.TicketReserved, now.UTC()).
		Order("ticket_number ASC").
		Limit(quantity).
		Scan(ctx, &numbers)
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

// Unavailable lists which of numbers userID could not reserve right now.
func (d *DB) Unavailable(ctx context.Context, competitionID string, numbers []int, userID string, now time.Time) ([]int, error) {
	return unavailable(ctx, d.Bun, competitionID, normalize(numbers), userID, now.UTC())
}

// HeldBy lists the numbers userID currently holds under a live reservation.
func (d *DB) HeldBy(ctx context.Context, competitionID, userID string, now time.Time) ([]int, error) {
	return heldBy(ctx, d.Bun, competitionID, userID, now.UTC())
}

// CountOwned counts live reservations plus sold and free entry tickets of userID.
func (d *DB) CountOwned(ctx context.Context, competitionID, userID string, now time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("competition_id = ?", competitionID).
		Where("user_id = ?", userID).
		Where("(status IN (?) OR (status = ? AND reserved_until > ?))",
			bun.In([]models.TicketStatus{models.TicketSold, models.TicketFreeEntry}), models.TicketReserved, now.UTC()).
		Count(ctx)
}

type tallyRow struct {
	Status  models.TicketStatus `bun:"status"`
	Expired int                 `bun:"expired"`
	N       int                 `bun:"n"`
}

// Tally breaks the pool down by status in a single statement.
func (d *DB) Tally(ctx context.Context, competitionID string, now time.Time) (models.Tally, error) {
	var rows []tallyRow
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("status").
		ColumnExpr("CASE WHEN status = ? AND reserved_until <= ? THEN 1 ELSE 0 END AS expired", models.TicketReserved, now.UTC()).
		ColumnExpr("count(*) AS n").
		Where("competition_id = ?", competitionID).
		GroupExpr("status, expired").
		Scan(ctx, &rows)
	if err != nil {
		return models.Tally{}, err
	}

	var tally models.Tally
	for _, row := range rows {
		switch {
		case row.Status == models.TicketAvailable, row.Status == models.TicketReserved && row.Expired == 1:
			tally.Available += row.N
		case row.Status == models.TicketReserved:
			tally.Reserved += row.N
		case row.Status == models.TicketSold:
			tally.Sold += row.N
		case row.Status == models.TicketFreeEntry:
			tally.FreeEntry += row.N
		}
	}
	return tally, nil
}

// Entries returns the tickets that take part in the draw.
func (d *DB) Entries(ctx context.Context, competitionID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("competition_id = ?", competitionID).
		Where("status IN (?)", bun.In([]models.TicketStatus{models.TicketSold, models.TicketFreeEntry})).
		Order("ticket_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicket(ctx context.Context, competitionID string, number int) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("competition_id = ?", competitionID).
		Where("ticket_number = ?", number).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func heldBy(ctx context.Context, idb bun.IDB, competitionID, userID string, now time.Time) ([]int, error) {
	var numbers []int
	err := idb.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("ticket_number").
		Where("competition_id = ?", competitionID).
		Where("user_id = ?", userID).
		Where("status = ?", models.TicketReserved).
		Where("reserved_until > ?", now).
		Order("ticket_number ASC").
		Scan(ctx, &numbers)
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

func unavailable(ctx context.Context, idb bun.IDB, competitionID string, numbers []int, userID string, now time.Time) ([]int, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var tickets []models.Ticket
	err := idb.NewSelect().
		Model(&tickets).
		Where("competition_id = ?", competitionID).
		Where("ticket_number IN (?)", bun.In(numbers)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	ok := make(map[int]bool, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		ownHold := userID != "" && t.Status == models.TicketReserved && t.UserID == userID
		if t.Biddable(now) || ownHold {
			ok[t.TicketNumber] = true
		}
	}
	out := []int{}
	for _, n := range numbers {
		if !ok[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectAll(res rowsAffected, want int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != want {
		return fmt.Errorf("updated %d of %d tickets", n, want)
	}
	return nil
}

// normalize sorts numbers and drops duplicates.
func normalize(numbers []int) []int {
	if len(numbers) == 0 {
		return nil
	}
	out := append([]int(nil), numbers...)
	sort.Ints(out)
	uniq := out[:1]
	for _, n := range out[1:] {
		if n != uniq[len(uniq)-1] {
			uniq = append(uniq, n)
		}
	}
	return uniq
}

// difference returns the members of a that are not in b.
func difference(a, b []int) []int {
	in := make(map[int]bool, len(b))
	for _, n := range b {
		in[n] = true
	}
	out := []int{}
	for _, n := range a {
		if !in[n] {
			out = append(out, n)
		}
	}
	return out
}
