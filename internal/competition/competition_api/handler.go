package competition_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/utils"
)

type CompetitionService interface {
	Create(ctx context.Context, req models.CompetitionRequest) (*models.Competition, error)
	GetCompetition(ctx context.Context, id string) (*models.Competition, error)
	List(ctx context.Context, status models.CompetitionStatus) ([]models.Competition, error)
	TransitionStatus(ctx context.Context, id string, next models.CompetitionStatus) error
	Draw(ctx context.Context, id string) (*models.Competition, error)
}

type Handler struct {
	Service  CompetitionService
	Validate *validator.Validate
	Logger   *logger.Logger
}

func NewHandler(service CompetitionService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Validate: validator.New(), Logger: log}
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) validate(ctx context.Context, payload interface{}) error {
	err := h.Validate.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}
	errorFields, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	messages := make([]string, len(errorFields))
	for i, field := range errorFields {
		messages[i] = fmt.Sprintf("invalid '%s' with value '%v'", field.Field(), field.Value())
	}
	return fmt.Errorf("%s", strings.Join(messages, ", "))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CompetitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate(r.Context(), req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	comp, err := h.Service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Create: competition %s with %d tickets", comp.ID, comp.TotalTickets))
	utils.WriteSuccess(w, http.StatusCreated, "competition created", comp)
}

// List accepts an optional ?status= filter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var status models.CompetitionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		parsed, err := models.ParseCompetitionStatus(v)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	comps, err := h.Service.List(r.Context(), status)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}
	if comps == nil {
		comps = []models.Competition{}
	}
	utils.WriteSuccess(w, http.StatusOK, "competitions", comps)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	comp, err := h.Service.GetCompetition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "competition", comp)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate(r.Context(), req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	next, err := models.ParseCompetitionStatus(req.Status)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Service.TransitionStatus(r.Context(), id, next); err != nil {
		h.writeError(w, "UpdateStatus", err)
		return
	}
	comp, err := h.Service.GetCompetition(r.Context(), id)
	if err != nil {
		h.writeError(w, "UpdateStatus", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "status updated", comp)
}

func (h *Handler) Draw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	comp, err := h.Service.Draw(r.Context(), id)
	if err != nil {
		h.writeError(w, "Draw", err)
		return
	}
	h.Logger.Info("DRAW", fmt.Sprintf("Competition %s drawn, winning number %d", id, comp.WinningNumber))
	utils.WriteSuccess(w, http.StatusOK, "competition drawn", comp)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	if models.ErrorReason(err) == "" {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteDomainError(w, err)
}
