package order_api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/utils"
)

type OrderService interface {
	Checkout(ctx context.Context, competitionID, userID string) (*models.Order, error)
	GetOwnedOrder(ctx context.Context, id, userID string) (*models.Order, error)
	GetOrdersForUser(ctx context.Context, userID string) ([]models.Order, error)
	CancelOrder(ctx context.Context, id, userID string) (*models.Order, error)
	MarkProcessing(ctx context.Context, id, paymentRef string) (*models.Order, error)
	HandlePaymentSucceeded(ctx context.Context, id, paymentRef string) error
	HandlePaymentFailed(ctx context.Context, id string) error
	Refund(ctx context.Context, id string) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ReconciliationQueue(ctx context.Context) ([]models.Order, error)
}

type Handler struct {
	OrderService OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService OrderService, log *logger.Logger) *Handler {
	return &Handler{OrderService: orderService, Logger: log}
}

// Checkout turns the caller's current reservation into a pending order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("Checkout: competition=%s user=%s", competitionID, userID))

	order, err := h.OrderService.Checkout(r.Context(), competitionID, userID)
	if err != nil {
		h.writeError(w, "Checkout", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "order created", order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := h.OrderService.GetOwnedOrder(r.Context(), orderID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "GetOrder", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "order", order)
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.GetOrdersForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "ListMyOrders", err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	utils.WriteSuccess(w, http.StatusOK, "orders", orders)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("CancelOrder: orderId=%s", orderID))

	order, err := h.OrderService.CancelOrder(r.Context(), orderID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "CancelOrder", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "order cancelled", order)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	if models.ErrorReason(err) == "" {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteDomainError(w, err)
}
