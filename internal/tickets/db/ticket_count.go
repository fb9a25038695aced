package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-raffle/internal/models"
)

// IncrementTicketCount adds n sold tickets to the competition's counter for
// the UTC day of at.
func (d *DB) IncrementTicketCount(ctx context.Context, competitionID string, n int, at time.Time) error {
	date := at.UTC().Truncate(24 * time.Hour)

	var existingCount models.TicketCount
	err := d.Bun.NewSelect().
		Model(&existingCount).
		Where("competition_id = ?", competitionID).
		Where("date = ?", date).
		Limit(1).
		Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		newCount := models.TicketCount{
			CompetitionID: competitionID,
			Count:         n,
			Date:          date,
		}
		_, err = d.Bun.NewInsert().Model(&newCount).Exec(ctx)
		return err
	}
	if err != nil {
		return err
	}

	_, err = d.Bun.NewUpdate().
		Model((*models.TicketCount)(nil)).
		Set("count = count + ?", n).
		Where("id = ?", existingCount.ID).
		Exec(ctx)
	return err
}

// GetTicketCounts returns the daily counters of a competition, oldest first.
func (d *DB) GetTicketCounts(ctx context.Context, competitionID string) ([]models.TicketCount, error) {
	var counts []models.TicketCount
	err := d.Bun.NewSelect().
		Model(&counts).
		Where("competition_id = ?", competitionID).
		Order("date ASC").
		Scan(ctx)
	return counts, err
}
