package ticket_api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/models"
	"ms-raffle/internal/tickets/qr"
)

type MockTickets struct {
	mock.Mock
}

func (m *MockTickets) GetTicket(ctx context.Context, competitionID string, number int) (*models.Ticket, error) {
	args := m.Called(ctx, competitionID, number)
	t, _ := args.Get(0).(*models.Ticket)
	return t, args.Error(1)
}

func (m *MockTickets) Tally(ctx context.Context, competitionID string, now time.Time) (models.Tally, error) {
	args := m.Called(ctx, competitionID, now)
	return args.Get(0).(models.Tally), args.Error(1)
}

func (m *MockTickets) GetTicketCounts(ctx context.Context, competitionID string) ([]models.TicketCount, error) {
	args := m.Called(ctx, competitionID)
	counts, _ := args.Get(0).([]models.TicketCount)
	return counts, args.Error(1)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(tickets *MockTickets) (*Handler, http.Handler) {
	h := NewHandler(tickets, "qr-secret", nil)
	h.Now = func() time.Time { return fixedNow }

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if user := req.Header.Get("X-Test-User"); user != "" {
					req = req.WithContext(auth.WithClaims(req.Context(), auth.Claims{Subject: user}))
				}
				next.ServeHTTP(w, req)
			})
		})
		r.Get("/competitions/{id}/tickets/{number}/qr", h.GetReceiptQR)
		r.Post("/receipts/verify", h.VerifyReceipt)
		r.Get("/competitions/{id}/sales", h.GetSales)
	})
	return h, r
}

func soldTicket(user string) *models.Ticket {
	return &models.Ticket{
		CompetitionID: "comp-1",
		TicketNumber:  7,
		Status:        models.TicketSold,
		UserID:        user,
		UpdatedAt:     fixedNow,
	}
}

func TestGetReceiptQR(t *testing.T) {
	tickets := new(MockTickets)
	tickets.On("GetTicket", mock.Anything, "comp-1", 7).Return(soldTicket("alice"), nil)
	_, router := newTestHandler(tickets)

	req := httptest.NewRequest(http.MethodGet, "/competitions/comp-1/tickets/7/qr", nil)
	req.Header.Set("X-Test-User", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestGetReceiptQR_NotOwnedOrNotSold(t *testing.T) {
	reserved := soldTicket("alice")
	reserved.Status = models.TicketReserved

	tests := []struct {
		name   string
		ticket *models.Ticket
		err    error
		user   string
	}{
		{"someone else's ticket", soldTicket("bob"), nil, "alice"},
		{"only reserved", reserved, nil, "alice"},
		{"missing", nil, sql.ErrNoRows, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tickets := new(MockTickets)
			tickets.On("GetTicket", mock.Anything, "comp-1", 7).Return(tt.ticket, tt.err)
			_, router := newTestHandler(tickets)

			req := httptest.NewRequest(http.MethodGet, "/competitions/comp-1/tickets/7/qr", nil)
			req.Header.Set("X-Test-User", tt.user)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestGetReceiptQR_BadNumber(t *testing.T) {
	_, router := newTestHandler(new(MockTickets))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/competitions/comp-1/tickets/seven/qr", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyReceipt(t *testing.T) {
	tickets := new(MockTickets)
	tickets.On("GetTicket", mock.Anything, "comp-1", 7).Return(soldTicket("alice"), nil)
	h, router := newTestHandler(tickets)

	sealed, err := h.QRGenerator.Seal(qr.Receipt{CompetitionID: "comp-1", TicketNumber: 7, UserID: "alice", Status: models.TicketSold})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"encrypted_qr": sealed})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/receipts/verify", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Valid bool `json:"valid"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Valid)
}

func TestVerifyReceipt_Forged(t *testing.T) {
	_, router := newTestHandler(new(MockTickets))
	sealed, err := qr.NewGenerator("other-secret").Seal(qr.Receipt{CompetitionID: "comp-1", TicketNumber: 7})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"encrypted_qr": sealed})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/receipts/verify", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSales(t *testing.T) {
	tickets := new(MockTickets)
	tickets.On("Tally", mock.Anything, "comp-1", fixedNow).Return(models.Tally{Available: 90, Reserved: 2, Sold: 7, FreeEntry: 1}, nil)
	tickets.On("GetTicketCounts", mock.Anything, "comp-1").Return([]models.TicketCount{
		{CompetitionID: "comp-1", Count: 3, Date: fixedNow.AddDate(0, 0, -1)},
		{CompetitionID: "comp-1", Count: 4, Date: fixedNow},
	}, nil)
	_, router := newTestHandler(tickets)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/competitions/comp-1/sales", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data SalesResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Data.TotalSold)
	assert.Equal(t, 100, resp.Data.Tally.Total())
	tickets.AssertExpectations(t)
}

func TestGetSales_UnknownCompetition(t *testing.T) {
	tickets := new(MockTickets)
	tickets.On("Tally", mock.Anything, "nope", fixedNow).Return(models.Tally{}, nil)
	_, router := newTestHandler(tickets)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/competitions/nope/sales", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
