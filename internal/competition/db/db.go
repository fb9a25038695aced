package db

import (
	"context"
	"fmt"
	"time"

	"ms-raffle/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateCompetition(ctx context.Context, comp *models.Competition) error {
	_, err := d.Bun.NewInsert().Model(comp).Exec(ctx)
	return err
}

// DeleteCompetition removes a competition that never went live.
func (d *DB) DeleteCompetition(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Competition)(nil)).
		Where("id = ?", id).
		Where("status = ?", models.CompetitionDraft).
		Exec(ctx)
	return err
}

func (d *DB) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	var comp models.Competition
	err := d.Bun.NewSelect().
		Model(&comp).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &comp, nil
}

// ListCompetitions returns competitions newest first, optionally filtered by status.
func (d *DB) ListCompetitions(ctx context.Context, status models.CompetitionStatus) ([]models.Competition, error) {
	var comps []models.Competition
	q := d.Bun.NewSelect().Model(&comps).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return comps, nil
}

// UpdateStatus moves a competition from one status to the next. It fails
// when the stored status is no longer from, so two admins cannot both win.
func (d *DB) UpdateStatus(ctx context.Context, id string, from, next models.CompetitionStatus, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Competition)(nil)).
		Set("status = ?", next).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update competition %s status: %w", id, err)
	}
	return expectOne(res, id, from)
}

// RecordDraw stores the winner and closes a competition that is DRAWING.
func (d *DB) RecordDraw(ctx context.Context, id string, winningNumber int, drawnAt time.Time) error {
	drawnAt = drawnAt.UTC()
	res, err := d.Bun.NewUpdate().
		Model((*models.Competition)(nil)).
		Set("status = ?", models.CompetitionCompleted).
		Set("winning_number = ?", winningNumber).
		Set("drawn_at = ?", drawnAt).
		Set("updated_at = ?", drawnAt).
		Where("id = ?", id).
		Where("status = ?", models.CompetitionDrawing).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record draw for %s: %w", id, err)
	}
	return expectOne(res, id, models.CompetitionDrawing)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectOne(res rowsAffected, id string, from models.CompetitionStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return models.NewBusinessRuleError(models.ReasonInvalidTransition,
			fmt.Sprintf("competition %s is no longer %s", id, from))
	}
	return nil
}
