package order_api

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
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/models"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) order(args mock.Arguments) (*models.Order, error) {
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) Checkout(ctx context.Context, competitionID, userID string) (*models.Order, error) {
	return m.order(m.Called(ctx, competitionID, userID))
}

func (m *MockOrderService) GetOwnedOrder(ctx context.Context, id, userID string) (*models.Order, error) {
	return m.order(m.Called(ctx, id, userID))
}

func (m *MockOrderService) GetOrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	args := m.Called(ctx, userID)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, id, userID string) (*models.Order, error) {
	return m.order(m.Called(ctx, id, userID))
}

func (m *MockOrderService) MarkProcessing(ctx context.Context, id, paymentRef string) (*models.Order, error) {
	return m.order(m.Called(ctx, id, paymentRef))
}

func (m *MockOrderService) HandlePaymentSucceeded(ctx context.Context, id, paymentRef string) error {
	return m.Called(ctx, id, paymentRef).Error(0)
}

func (m *MockOrderService) HandlePaymentFailed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOrderService) Refund(ctx context.Context, id string) (*models.Order, error) {
	return m.order(m.Called(ctx, id))
}

func (m *MockOrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return m.order(m.Called(ctx, id))
}

func (m *MockOrderService) ReconciliationQueue(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func newRouter(svc *MockOrderService) http.Handler {
	h := NewHandler(svc, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithClaims(req.Context(), auth.Claims{Subject: "alice"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/competitions/{id}/checkout", h.Checkout)
	r.Get("/orders", h.ListMyOrders)
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Post("/orders/{orderId}/cancel", h.CancelOrder)
	r.Post("/admin/orders/{orderId}/processing", h.MarkProcessing)
	r.Post("/admin/orders/{orderId}/payment-succeeded", h.ReplayPaymentSucceeded)
	r.Post("/admin/orders/{orderId}/payment-failed", h.ReplayPaymentFailed)
	r.Post("/admin/orders/{orderId}/refund", h.Refund)
	r.Get("/admin/orders/reconciliation", h.ReconciliationQueue)
	return r
}

func serve(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func pendingOrder() *models.Order {
	return &models.Order{
		OrderID:       "order-1",
		CompetitionID: "comp-1",
		UserID:        "alice",
		TicketNumbers: []int{1, 2},
		Amount:        4,
		Status:        models.PaymentPending,
	}
}

func TestCheckout(t *testing.T) {
	svc := new(MockOrderService)
	svc.On("Checkout", mock.Anything, "comp-1", "alice").Return(pendingOrder(), nil)

	rec := serve(newRouter(svc), http.MethodPost, "/competitions/comp-1/checkout", nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestCheckout_NoReservation(t *testing.T) {
	svc := new(MockOrderService)
	svc.On("Checkout", mock.Anything, "comp-1", "alice").
		Return(nil, models.NewBusinessRuleError(models.ReasonNoActiveReservation, "nothing reserved"))

	rec := serve(newRouter(svc), http.MethodPost, "/competitions/comp-1/checkout", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_ACTIVE_RESERVATION")
}

func TestGetOrder_NotOwned(t *testing.T) {
	svc := new(MockOrderService)
	svc.On("GetOwnedOrder", mock.Anything, "order-9", "alice").
		Return(nil, models.NewNotFoundError(models.ReasonOrderNotFound, "order order-9 not found"))

	rec := serve(newRouter(svc), http.MethodGet, "/orders/order-9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMyOrders_Empty(t *testing.T) {
	svc := new(MockOrderService)
	svc.On("GetOrdersForUser", mock.Anything, "alice").Return(nil, nil)

	rec := serve(newRouter(svc), http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
}

func TestCancelOrder(t *testing.T) {
	cancelled := pendingOrder()
	cancelled.Status = models.PaymentCancelled
	svc := new(MockOrderService)
	svc.On("CancelOrder", mock.Anything, "order-1", "alice").Return(cancelled, nil)

	rec := serve(newRouter(svc), http.MethodPost, "/orders/order-1/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
}

func TestMarkProcessing_RequiresRef(t *testing.T) {
	rec := serve(newRouter(new(MockOrderService)), http.MethodPost, "/admin/orders/order-1/processing", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplayPaymentSucceeded_Conflict(t *testing.T) {
	flagged := pendingOrder()
	flagged.Status = models.PaymentSucceeded
	flagged.NeedsReconciliation = true

	svc := new(MockOrderService)
	svc.On("HandlePaymentSucceeded", mock.Anything, "order-1", "pi_1").
		Return(models.NewPaymentConflictError("comp-1", "alice", []int{1, 2}, nil))
	svc.On("GetOrder", mock.Anything, "order-1").Return(flagged, nil)

	rec := serve(newRouter(svc), http.MethodPost, "/admin/orders/order-1/payment-succeeded", map[string]string{"payment_ref": "pi_1"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"needs_reconciliation":true`)
}

func TestReplayPaymentFailed(t *testing.T) {
	failed := pendingOrder()
	failed.Status = models.PaymentFailed
	svc := new(MockOrderService)
	svc.On("HandlePaymentFailed", mock.Anything, "order-1").Return(nil)
	svc.On("GetOrder", mock.Anything, "order-1").Return(failed, nil)

	rec := serve(newRouter(svc), http.MethodPost, "/admin/orders/order-1/payment-failed", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefund_WrongState(t *testing.T) {
	svc := new(MockOrderService)
	svc.On("Refund", mock.Anything, "order-1").
		Return(nil, models.NewBusinessRuleError(models.ReasonOrderStateConflict, "order order-1 cannot move from PENDING to REFUNDED"))

	rec := serve(newRouter(svc), http.MethodPost, "/admin/orders/order-1/refund", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReconciliationQueue(t *testing.T) {
	flagged := *pendingOrder()
	flagged.NeedsReconciliation = true
	svc := new(MockOrderService)
	svc.On("ReconciliationQueue", mock.Anything).Return([]models.Order{flagged}, nil)

	rec := serve(newRouter(svc), http.MethodGet, "/admin/orders/reconciliation", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "order-1")
}
