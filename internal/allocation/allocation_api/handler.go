package allocation_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/sse"
	"ms-raffle/internal/utils"
)

type Allocator interface {
	Reserve(ctx context.Context, competitionID, userID string, req models.ReserveRequest) (*models.ReserveResult, error)
	Release(ctx context.Context, competitionID, userID string) (int, error)
	GetStatus(ctx context.Context, competitionID, userID string) (*models.CompetitionStatusView, error)
	GrantFreeEntry(ctx context.Context, competitionID, userID string, quantity int) ([]int, error)
	DrawEntries(ctx context.Context, competitionID string) ([]models.Ticket, error)
}

type Handler struct {
	Allocator Allocator
	Emitter   *sse.AvailabilityEmitter
	Logger    *logger.Logger
}

func NewHandler(allocator Allocator, emitter *sse.AvailabilityEmitter, log *logger.Logger) *Handler {
	return &Handler{Allocator: allocator, Emitter: emitter, Logger: log}
}

type freeEntryRequest struct {
	UserID   string `json:"user_id"`
	Quantity int    `json:"quantity"`
}

// GetStatus is public; an authenticated caller also gets their own reservation.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")

	status, err := h.Allocator.GetStatus(r.Context(), competitionID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "GetStatus", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "competition status", status)
}

func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")
	userID := auth.UserID(r.Context())

	var req models.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.Allocator.Reserve(r.Context(), competitionID, userID, req)
	if err != nil {
		h.writeError(w, "Reserve", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Reserve: %s holds %v in %s until %s", userID, result.TicketNumbers, competitionID, result.ExpiresAt.Format("15:04:05")))
	utils.WriteSuccess(w, http.StatusCreated, "tickets reserved", result)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")

	released, err := h.Allocator.Release(r.Context(), competitionID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "Release", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "reservation released", map[string]int{"released": released})
}

// GrantFreeEntry is an operator action: it enters the named user for free
// once their postal or alternative entry has been approved.
func (h *Handler) GrantFreeEntry(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")

	var req freeEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		utils.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	numbers, err := h.Allocator.GrantFreeEntry(r.Context(), competitionID, req.UserID, req.Quantity)
	if err != nil {
		h.writeError(w, "GrantFreeEntry", err)
		return
	}
	h.Logger.LogSecurity("FREE_ENTRY", fmt.Sprintf("%s granted %d free entries in %s to %s",
		auth.UserID(r.Context()), len(numbers), competitionID, req.UserID))
	utils.WriteSuccess(w, http.StatusCreated, "free entry granted", map[string][]int{"ticket_numbers": numbers})
}

// GetEntries lists the tickets that take part in the draw.
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Allocator.DrawEntries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "GetEntries", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "draw entries", entries)
}

// Stream pushes availability changes of one competition as Server-Sent
// Events. The first event is the current status.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	status, err := h.Allocator.GetStatus(r.Context(), competitionID, "")
	if err != nil {
		h.writeError(w, "Stream", err)
		return
	}

	ctx := r.Context()
	events := h.Emitter.Subscribe(ctx, competitionID)

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	writeEvent(w, "status", status)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to availability stream for competition: %s", competitionID))

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, string(event.Type), event)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from availability stream for: %s", competitionID))
			return
		}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	if models.ErrorReason(err) == "" {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteDomainError(w, err)
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeEvent(w http.ResponseWriter, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
