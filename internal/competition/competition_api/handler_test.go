package competition_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-raffle/internal/models"
)

type MockCompetitionService struct {
	mock.Mock
}

func (m *MockCompetitionService) Create(ctx context.Context, req models.CompetitionRequest) (*models.Competition, error) {
	args := m.Called(ctx, req)
	c, _ := args.Get(0).(*models.Competition)
	return c, args.Error(1)
}

func (m *MockCompetitionService) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Competition)
	return c, args.Error(1)
}

func (m *MockCompetitionService) List(ctx context.Context, status models.CompetitionStatus) ([]models.Competition, error) {
	args := m.Called(ctx, status)
	c, _ := args.Get(0).([]models.Competition)
	return c, args.Error(1)
}

func (m *MockCompetitionService) TransitionStatus(ctx context.Context, id string, next models.CompetitionStatus) error {
	return m.Called(ctx, id, next).Error(0)
}

func (m *MockCompetitionService) Draw(ctx context.Context, id string) (*models.Competition, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Competition)
	return c, args.Error(1)
}

func newRouter(svc *MockCompetitionService) http.Handler {
	h := NewHandler(svc, nil)
	r := chi.NewRouter()
	r.Get("/competitions", h.List)
	r.Get("/competitions/{id}", h.Get)
	r.Post("/admin/competitions", h.Create)
	r.Put("/admin/competitions/{id}/status", h.UpdateStatus)
	r.Post("/admin/competitions/{id}/draw", h.Draw)
	return r
}

func serve(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestCreate(t *testing.T) {
	req := models.CompetitionRequest{Title: "Car", TotalTickets: 100, TicketPrice: 2, MaxTicketsPerUser: 10}
	svc := new(MockCompetitionService)
	svc.On("Create", mock.Anything, req).Return(&models.Competition{ID: "comp-1", Title: "Car", TotalTickets: 100, Status: models.CompetitionDraft}, nil)

	rec := serve(newRouter(svc), http.MethodPost, "/admin/competitions", req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"DRAFT"`)
}

func TestCreate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  models.CompetitionRequest
		want string
	}{
		{"missing title", models.CompetitionRequest{TotalTickets: 10}, "Title"},
		{"no tickets", models.CompetitionRequest{Title: "Car"}, "TotalTickets"},
		{"negative price", models.CompetitionRequest{Title: "Car", TotalTickets: 10, TicketPrice: -1}, "TicketPrice"},
		{"limit above pool", models.CompetitionRequest{Title: "Car", TotalTickets: 10, MaxTicketsPerUser: 11}, "MaxTicketsPerUser"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockCompetitionService)
			rec := serve(newRouter(svc), http.MethodPost, "/admin/competitions", tt.req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreate_ServiceRejects(t *testing.T) {
	svc := new(MockCompetitionService)
	svc.On("Create", mock.Anything, mock.Anything).
		Return(nil, models.NewValidationError(models.ReasonInvalidCompetition, "title is required"))

	rec := serve(newRouter(svc), http.MethodPost, "/admin/competitions", models.CompetitionRequest{Title: "Car", TotalTickets: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_QUANTITY")
}

func TestList_StatusFilter(t *testing.T) {
	svc := new(MockCompetitionService)
	svc.On("List", mock.Anything, models.CompetitionActive).Return([]models.Competition{{ID: "comp-1"}}, nil)

	rec := serve(newRouter(svc), http.MethodGet, "/competitions?status=ACTIVE", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newRouter(svc), http.MethodGet, "/competitions?status=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestUpdateStatus(t *testing.T) {
	svc := new(MockCompetitionService)
	svc.On("TransitionStatus", mock.Anything, "comp-1", models.CompetitionActive).Return(nil)
	svc.On("GetCompetition", mock.Anything, "comp-1").Return(&models.Competition{ID: "comp-1", Status: models.CompetitionActive}, nil)

	rec := serve(newRouter(svc), http.MethodPut, "/admin/competitions/comp-1/status", statusRequest{Status: "ACTIVE"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	svc := new(MockCompetitionService)
	svc.On("TransitionStatus", mock.Anything, "comp-1", models.CompetitionDraft).
		Return(models.NewBusinessRuleError(models.ReasonInvalidTransition, "ACTIVE cannot move to DRAFT"))

	rec := serve(newRouter(svc), http.MethodPut, "/admin/competitions/comp-1/status", statusRequest{Status: "DRAFT"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TRANSITION")
}

func TestDraw_NoEntries(t *testing.T) {
	svc := new(MockCompetitionService)
	svc.On("Draw", mock.Anything, "comp-1").
		Return(nil, models.NewBusinessRuleError(models.ReasonNoEntries, "no entries"))

	rec := serve(newRouter(svc), http.MethodPost, "/admin/competitions/comp-1/draw", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
