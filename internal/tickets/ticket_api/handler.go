package ticket_api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/tickets/qr"
	"ms-raffle/internal/utils"
)

type TicketReader interface {
	GetTicket(ctx context.Context, competitionID string, number int) (*models.Ticket, error)
	Tally(ctx context.Context, competitionID string, now time.Time) (models.Tally, error)
	GetTicketCounts(ctx context.Context, competitionID string) ([]models.TicketCount, error)
}

type Handler struct {
	Tickets     TicketReader
	QRGenerator *qr.Generator
	Logger      *logger.Logger
	Now         func() time.Time
}

func NewHandler(tickets TicketReader, qrSecret string, log *logger.Logger) *Handler {
	return &Handler{
		Tickets:     tickets,
		QRGenerator: qr.NewGenerator(qrSecret),
		Logger:      log,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// SalesResponse is the admin view of a competition's pool.
type SalesResponse struct {
	CompetitionID string               `json:"competition_id"`
	Tally         models.Tally         `json:"tally"`
	TotalSold     int                  `json:"total_sold"`
	Daily         []models.TicketCount `json:"daily"`
}

// GetReceiptQR serves the PNG entry receipt for one of the caller's sold or
// free-entry tickets. Tickets the caller does not hold are reported missing.
func (h *Handler) GetReceiptQR(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "ticket number must be an integer")
		return
	}

	ticket, err := h.Tickets.GetTicket(r.Context(), competitionID, number)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		h.Logger.Error("API", fmt.Sprintf("GetReceiptQR: failed to load ticket %s/%d: %v", competitionID, number, err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	if ticket == nil || !entered(ticket) || ticket.UserID != auth.UserID(r.Context()) {
		utils.WriteError(w, http.StatusNotFound, "ticket not found")
		return
	}

	png, err := h.QRGenerator.PNG(qr.Receipt{
		CompetitionID: ticket.CompetitionID,
		TicketNumber:  ticket.TicketNumber,
		UserID:        ticket.UserID,
		Status:        ticket.Status,
		IssuedAt:      ticket.UpdatedAt,
	})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetReceiptQR: failed to render QR: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to render receipt")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// VerifyReceipt checks a scanned receipt against the current pool state.
// Expected POST body: {"encrypted_qr": "..."}
func (h *Handler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EncryptedQR == "" {
		utils.WriteError(w, http.StatusBadRequest, "encrypted_qr is required")
		return
	}

	receipt, err := h.QRGenerator.Open(body.EncryptedQR)
	if err != nil {
		h.Logger.LogSecurity("RECEIPT_REJECTED", err.Error())
		utils.WriteError(w, http.StatusBadRequest, "invalid receipt")
		return
	}

	ticket, err := h.Tickets.GetTicket(r.Context(), receipt.CompetitionID, receipt.TicketNumber)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		utils.WriteError(w, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	valid := ticket != nil && entered(ticket) && ticket.UserID == receipt.UserID
	utils.WriteSuccess(w, http.StatusOK, "receipt checked", map[string]interface{}{
		"valid":   valid,
		"receipt": receipt,
	})
}

func (h *Handler) GetSales(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")

	tally, err := h.Tickets.Tally(r.Context(), competitionID, h.Now())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetSales: tally failed for %s: %v", competitionID, err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to read pool")
		return
	}
	if tally.Total() == 0 {
		utils.WriteError(w, http.StatusNotFound, "competition not found")
		return
	}

	daily, err := h.Tickets.GetTicketCounts(r.Context(), competitionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetSales: ticket counts failed for %s: %v", competitionID, err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to read daily counts")
		return
	}

	resp := SalesResponse{CompetitionID: competitionID, Tally: tally, Daily: daily}
	for _, c := range daily {
		resp.TotalSold += c.Count
	}
	utils.WriteSuccess(w, http.StatusOK, "sales", resp)
}

func entered(t *models.Ticket) bool {
	return t.Status == models.TicketSold || t.Status == models.TicketFreeEntry
}
