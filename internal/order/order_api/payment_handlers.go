package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/models"
	"ms-raffle/internal/utils"
)

type paymentRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// MarkProcessing records that the payment provider accepted the order.
func (h *Handler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentRef == "" {
		utils.WriteError(w, http.StatusBadRequest, "payment_ref is required")
		return
	}

	order, err := h.OrderService.MarkProcessing(r.Context(), orderID, req.PaymentRef)
	if err != nil {
		h.writeError(w, "MarkProcessing", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "order processing", order)
}

// ReplayPaymentSucceeded applies a payment success by hand, for signals
// that never arrived on the payment topic.
func (h *Handler) ReplayPaymentSucceeded(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req paymentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	err := h.OrderService.HandlePaymentSucceeded(r.Context(), orderID, req.PaymentRef)
	if err != nil && !models.IsPaymentConflict(err) {
		h.writeError(w, "ReplayPaymentSucceeded", err)
		return
	}
	order, getErr := h.OrderService.GetOrder(r.Context(), orderID)
	if getErr != nil {
		h.writeError(w, "ReplayPaymentSucceeded", getErr)
		return
	}
	if err != nil {
		// Payment is recorded but the tickets were lost; the order is now
		// on the reconciliation queue.
		h.Logger.Warn("PAYMENT", fmt.Sprintf("ReplayPaymentSucceeded: order %s needs reconciliation: %v", orderID, err))
		utils.WriteSuccess(w, http.StatusAccepted, "payment recorded, needs reconciliation", order)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "payment applied", order)
}

func (h *Handler) ReplayPaymentFailed(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	if err := h.OrderService.HandlePaymentFailed(r.Context(), orderID); err != nil {
		h.writeError(w, "ReplayPaymentFailed", err)
		return
	}
	order, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "ReplayPaymentFailed", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "payment failure applied", order)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("Refund: orderId=%s", orderID))

	order, err := h.OrderService.Refund(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "Refund", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "order refunded", order)
}

func (h *Handler) ReconciliationQueue(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ReconciliationQueue(r.Context())
	if err != nil {
		h.writeError(w, "ReconciliationQueue", err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	utils.WriteSuccess(w, http.StatusOK, "orders needing reconciliation", orders)
}
