package competition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-raffle/internal/draw"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateCompetition(ctx context.Context, comp *models.Competition) error
	DeleteCompetition(ctx context.Context, id string) error
	GetCompetition(ctx context.Context, id string) (*models.Competition, error)
	ListCompetitions(ctx context.Context, status models.CompetitionStatus) ([]models.Competition, error)
	UpdateStatus(ctx context.Context, id string, from, next models.CompetitionStatus, at time.Time) error
	RecordDraw(ctx context.Context, id string, winningNumber int, drawnAt time.Time) error
}

// TicketPool is the part of the pool a competition manages directly.
type TicketPool interface {
	Seed(ctx context.Context, competitionID string, total int, now time.Time) error
	Entries(ctx context.Context, competitionID string) ([]models.Ticket, error)
}

type Service struct {
	DB     DBLayer
	Pool   TicketPool
	Drawer draw.Drawer
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(db DBLayer, pool TicketPool, drawer draw.Drawer, log *logger.Logger) *Service {
	return &Service{
		DB:     db,
		Pool:   pool,
		Drawer: drawer,
		Logger: log,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a DRAFT competition and seeds its ticket pool. The ticket
// count is fixed from here on.
func (s *Service) Create(ctx context.Context, req models.CompetitionRequest) (*models.Competition, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, models.NewValidationError(models.ReasonInvalidCompetition, "title is required")
	}
	if req.TotalTickets <= 0 {
		return nil, models.NewValidationError(models.ReasonInvalidQuantity, "total_tickets must be greater than zero")
	}
	if req.TicketPrice < 0 {
		return nil, models.NewValidationError(models.ReasonInvalidCompetition, "ticket_price cannot be negative")
	}
	if req.MaxTicketsPerUser < 0 || req.MaxTicketsPerUser > req.TotalTickets {
		return nil, models.NewValidationError(models.ReasonInvalidCompetition, "max_tickets_per_user must be between 0 and total_tickets")
	}

	now := s.Now().UTC()
	comp := &models.Competition{
		ID:                uuid.NewString(),
		Title:             strings.TrimSpace(req.Title),
		TotalTickets:      req.TotalTickets,
		TicketPrice:       req.TicketPrice,
		MaxTicketsPerUser: req.MaxTicketsPerUser,
		Status:            models.CompetitionDraft,
		DrawDate:          req.DrawDate.UTC(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.DB.CreateCompetition(ctx, comp); err != nil {
		return nil, fmt.Errorf("create competition: %w", err)
	}
	if err := s.Pool.Seed(ctx, comp.ID, comp.TotalTickets, now); err != nil {
		if delErr := s.DB.DeleteCompetition(ctx, comp.ID); delErr != nil {
			s.Logger.Error("COMPETITION", fmt.Sprintf("Failed to remove unseeded competition %s: %v", comp.ID, delErr))
		}
		return nil, fmt.Errorf("seed tickets for %s: %w", comp.ID, err)
	}

	s.Logger.LogDatabase("SEED", "competition_tickets", fmt.Sprintf("%d tickets for competition %s", comp.TotalTickets, comp.ID))
	s.Logger.Info("COMPETITION", fmt.Sprintf("Created competition %s with %d tickets", comp.ID, comp.TotalTickets))
	return comp, nil
}

func (s *Service) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	comp, err := s.DB.GetCompetition(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError(models.ReasonCompetitionNotFound, fmt.Sprintf("competition %s not found", id))
	}
	return comp, err
}

func (s *Service) List(ctx context.Context, status models.CompetitionStatus) ([]models.Competition, error) {
	return s.DB.ListCompetitions(ctx, status)
}

// TransitionStatus enforces the competition lifecycle.
func (s *Service) TransitionStatus(ctx context.Context, id string, next models.CompetitionStatus) error {
	comp, err := s.GetCompetition(ctx, id)
	if err != nil {
		return err
	}
	if comp.Status == next {
		return nil
	}
	if !comp.Status.CanTransitionTo(next) {
		return models.NewBusinessRuleError(models.ReasonInvalidTransition,
			fmt.Sprintf("competition %s cannot move from %s to %s", id, comp.Status, next))
	}
	if err := s.DB.UpdateStatus(ctx, id, comp.Status, next, s.Now()); err != nil {
		return err
	}
	s.Logger.Info("COMPETITION", fmt.Sprintf("Competition %s moved from %s to %s", id, comp.Status, next))
	return nil
}

// Draw closes sales, picks a winner among sold and free entry tickets and
// records the actual draw date.
func (s *Service) Draw(ctx context.Context, id string) (*models.Competition, error) {
	comp, err := s.GetCompetition(ctx, id)
	if err != nil {
		return nil, err
	}
	if comp.Status != models.CompetitionDrawing {
		if err := s.TransitionStatus(ctx, id, models.CompetitionDrawing); err != nil {
			return nil, err
		}
	}

	entries, err := s.Pool.Entries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load entries for %s: %w", id, err)
	}
	winner, err := s.Drawer.Draw(ctx, entries)
	if errors.Is(err, draw.ErrNoEntries) {
		return nil, models.NewBusinessRuleError(models.ReasonNoEntries, fmt.Sprintf("competition %s has no entries", id))
	}
	if err != nil {
		return nil, err
	}

	if err := s.DB.RecordDraw(ctx, id, winner.TicketNumber, s.Now()); err != nil {
		return nil, err
	}
	s.Logger.Info("COMPETITION", fmt.Sprintf("Competition %s drawn, winning ticket %d", id, winner.TicketNumber))
	return s.GetCompetition(ctx, id)
}
