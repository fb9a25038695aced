package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-raffle/internal/models"
	"ms-raffle/internal/tickets/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err, "Failed to connect to in-memory database")
	// one connection keeps the in-memory database shared and serializes transactions
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	_, err = bunDB.NewCreateTable().Model((*models.Ticket)(nil)).Exec(ctx)
	require.NoError(t, err, "Failed to create ticket table")
	_, err = bunDB.NewCreateTable().Model((*models.TicketCount)(nil)).Exec(ctx)
	require.NoError(t, err, "Failed to create ticket_counts table")

	return &db.DB{Bun: bunDB}, bunDB
}

func seeded(t *testing.T, total int) *db.DB {
	pool, _ := setupTestDB(t)
	require.NoError(t, pool.Seed(context.Background(), "comp-1", total, baseTime))
	return pool
}

func TestSeedAndTally(t *testing.T) {
	pool := seeded(t, 2500)
	ctx := context.Background()

	count, err := pool.GetAvailableCount(ctx, "comp-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, 2500, count)

	tally, err := pool.Tally(ctx, "comp-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, models.Tally{Available: 2500}, tally)

	count, err = pool.GetAvailableCount(ctx, "other", baseTime)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkReserved_AllOrNothing(t *testing.T) {
	pool := seeded(t, 10)
	ctx := context.Background()
	until := baseTime.Add(15 * time.Minute)

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{2, 3}, "alice", until, baseTime))

	err := pool.MarkReserved(ctx, "comp-1", []int{1, 2, 4}, "bob", until, baseTime)
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))
	var re *models.RaffleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, []int{2}, re.TicketNumbers)

	// nothing of bob's batch stuck
	held, err := pool.HeldBy(ctx, "comp-1", "bob", baseTime)
	require.NoError(t, err)
	assert.Empty(t, held)

	count, err := pool.GetAvailableCount(ctx, "comp-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, 8, count)
}

func TestMarkReserved_UnknownNumberConflicts(t *testing.T) {
	pool := seeded(t, 5)
	err := pool.MarkReserved(context.Background(), "comp-1", []int{5, 6}, "alice", baseTime.Add(time.Minute), baseTime)
	require.Error(t, err)
	var re *models.RaffleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, []int{6}, re.TicketNumbers)
}

func TestMarkReserved_ExpiredReservationIsBiddable(t *testing.T) {
	pool := seeded(t, 3)
	ctx := context.Background()

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1}, "alice", baseTime.Add(time.Second), baseTime))

	later := baseTime.Add(2 * time.Second)
	count, err := pool.GetAvailableCount(ctx, "comp-1", later)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "expired hold counts as available without any write")

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1}, "bob", later.Add(time.Minute), later))
	held, err := pool.HeldBy(ctx, "comp-1", "bob", later)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, held)
}

func TestMarkReserved_SameUserRefreshesHold(t *testing.T) {
	pool := seeded(t, 5)
	ctx := context.Background()

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1, 2}, "alice", baseTime.Add(time.Minute), baseTime))
	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1, 2, 3}, "alice", baseTime.Add(10*time.Minute), baseTime.Add(30*time.Second)))

	held, err := pool.HeldBy(ctx, "comp-1", "alice", baseTime.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, held, "all three carry the refreshed deadline")
}

func TestMarkSold(t *testing.T) {
	pool := seeded(t, 5)
	ctx := context.Background()
	until := baseTime.Add(time.Minute)

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1, 2}, "alice", until, baseTime))

	err := pool.MarkSold(ctx, "comp-1", []int{1, 2}, "bob", baseTime)
	assert.True(t, models.IsConflict(err), "another user's hold cannot be sold")

	err = pool.MarkSold(ctx, "comp-1", []int{1, 2, 3}, "alice", baseTime)
	assert.True(t, models.IsConflict(err), "unreserved ticket in the batch")

	require.NoError(t, pool.MarkSold(ctx, "comp-1", []int{1, 2}, "alice", baseTime))

	tally, err := pool.Tally(ctx, "comp-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, models.Tally{Available: 3, Sold: 2}, tally)
}

func TestMarkSold_AfterExpiryFails(t *testing.T) {
	pool := seeded(t, 5)
	ctx := context.Background()

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{4}, "alice", baseTime.Add(time.Second), baseTime))

	err := pool.MarkSold(ctx, "comp-1", []int{4}, "alice", baseTime.Add(2*time.Second))
	require.Error(t, err)
	var re *models.RaffleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, []int{4}, re.TicketNumbers)

	ticket, err := pool.GetTicket(ctx, "comp-1", 4)
	require.NoError(t, err)
	assert.Equal(t, models.TicketReserved, ticket.Status)
}

func TestRelease_IsIdempotentAndSparesSold(t *testing.T) {
	pool := seeded(t, 5)
	ctx := context.Background()
	until := baseTime.Add(time.Minute)

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1, 2, 3}, "alice", until, baseTime))
	require.NoError(t, pool.MarkSold(ctx, "comp-1", []int{1}, "alice", baseTime))

	releasedAt := baseTime.Add(30 * time.Second)
	n, err := pool.Release(ctx, "comp-1", []int{1, 2, 3}, releasedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ticket, err := pool.GetTicket(ctx, "comp-1", 2)
	require.NoError(t, err)
	assert.True(t, ticket.UpdatedAt.Equal(releasedAt), "release is stamped with the caller's clock")

	n, err = pool.Release(ctx, "comp-1", []int{1, 2, 3}, releasedAt)
	require.NoError(t, err)
	assert.Zero(t, n)

	tally, err := pool.Tally(ctx, "comp-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, models.Tally{Available: 4, Sold: 1}, tally)
}

func TestReleaseOwned_OnlyTouchesOwnHolds(t *testing.T) {
	pool := seeded(t, 5)
	ctx := context.Background()
	until := baseTime.Add(time.Minute)

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1}, "alice", until, baseTime))
	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{2}, "bob", until, baseTime))

	n, err := pool.ReleaseOwned(ctx, "comp-1", "alice", []int{1, 2}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	held, err := pool.HeldBy(ctx, "comp-1", "bob", baseTime)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, held)
}

func TestReleaseExpired(t *testing.T) {
	pool := seeded(t, 6)
	ctx := context.Background()

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1, 2}, "alice", baseTime.Add(time.Second), baseTime))
	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{3}, "bob", baseTime.Add(time.Hour), baseTime))

	n, err := pool.ReleaseExpired(ctx, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tally, err := pool.Tally(ctx, "comp-1", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.Tally{Available: 5, Reserved: 1}, tally)
}

func TestSelectAvailable_LowestFirst(t *testing.T) {
	pool := seeded(t, 10)
	ctx := context.Background()

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1, 3}, "alice", baseTime.Add(time.Minute), baseTime))

	numbers, err := pool.SelectAvailable(ctx, "comp-1", 4, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5, 6}, numbers)

	numbers, err = pool.SelectAvailable(ctx, "comp-1", 0, baseTime)
	require.NoError(t, err)
	assert.Empty(t, numbers)
}

func TestUnavailableAndCountOwned(t *testing.T) {
	pool := seeded(t, 10)
	ctx := context.Background()
	until := baseTime.Add(time.Minute)

	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{1, 2}, "alice", until, baseTime))
	require.NoError(t, pool.MarkSold(ctx, "comp-1", []int{2}, "alice", baseTime))
	require.NoError(t, pool.MarkFreeEntry(ctx, "comp-1", []int{7}, "alice", baseTime))
	require.NoError(t, pool.MarkReserved(ctx, "comp-1", []int{5}, "bob", until, baseTime))

	missing, err := pool.Unavailable(ctx, "comp-1", []int{1, 2, 3, 5, 11}, "alice", baseTime)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 11}, missing)

	owned, err := pool.CountOwned(ctx, "comp-1", "alice", baseTime)
	require.NoError(t, err)
	assert.Equal(t, 3, owned)

	owned, err = pool.CountOwned(ctx, "comp-1", "alice", until.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, owned, "expired hold no longer counts")

	entries, err := pool.Entries(ctx, "comp-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].TicketNumber)
	assert.Equal(t, models.TicketFreeEntry, entries[1].Status)
}

func TestConcurrentMarkReserved_NoDoubleHold(t *testing.T) {
	pool := seeded(t, 20)
	ctx := context.Background()
	until := baseTime.Add(time.Minute)

	const workers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := map[int]string{}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", worker)
			// every worker overlaps its neighbours on two numbers
			batch := []int{worker + 1, worker + 2, worker + 3}
			if err := pool.MarkReserved(ctx, "comp-1", batch, user, until, baseTime); err != nil {
				assert.True(t, models.IsConflict(err))
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, n := range batch {
				if owner, taken := winners[n]; taken {
					t.Errorf("ticket %d granted to %s and %s", n, owner, user)
				}
				winners[n] = user
			}
		}(i)
	}
	wg.Wait()

	assert.NotEmpty(t, winners)
	tally, err := pool.Tally(ctx, "comp-1", baseTime)
	require.NoError(t, err)
	assert.Equal(t, len(winners), tally.Reserved)
	assert.Equal(t, 20, tally.Total())
}

func TestIncrementTicketCount(t *testing.T) {
	pool, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, pool.IncrementTicketCount(ctx, "comp-1", 3, baseTime))
	require.NoError(t, pool.IncrementTicketCount(ctx, "comp-1", 2, baseTime.Add(time.Hour)))
	require.NoError(t, pool.IncrementTicketCount(ctx, "comp-1", 1, baseTime.Add(24*time.Hour)))

	counts, err := pool.GetTicketCounts(ctx, "comp-1")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 5, counts[0].Count)
	assert.Equal(t, 1, counts[1].Count)
}
