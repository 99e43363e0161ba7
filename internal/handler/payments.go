package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/gamestore/internal/apperr"
	"github.com/mmeshcher/gamestore/internal/validation"
)

const defaultPaymentsLimit = 25

type checkoutRequest struct {
	ProductID string `json:"productId"`
	PromoCode string `json:"promoCode,omitempty"`
}

// Checkout создаёт платёж PIX за товар для текущего пользователя.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, name, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if req.ProductID == "" {
		h.badRequest(w, "productId is required")
		return
	}
	if !validation.IsValidPromoCode(req.PromoCode) {
		h.badRequest(w, "invalid promo code")
		return
	}

	if _, err := h.svc.Users.Touch(r.Context(), userID, name); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.svc.Payments.CreatePayment(r.Context(), userID, name, req.ProductID, req.PromoCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newPaymentResponse(p, true))
}

// ListPayments возвращает платежи текущего пользователя, новые первыми.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit, err := queryInt(r, "limit", defaultPaymentsLimit)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	payments, err := h.svc.Payments.ListUserPayments(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, newPaymentList(payments, true))
}

// GetPayment возвращает статус платежа. Чужие платежи видны только администраторам.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	p, err := h.svc.Payments.CheckStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if p.BuyerID != userID && !h.authMiddleware.IsAdmin(userID) {
		h.writeError(w, r, apperr.New(apperr.KindNotFound, "payment not found"))
		return
	}

	h.writeJSON(w, http.StatusOK, newPaymentResponse(p, true))
}

// CancelPayment отменяет ожидающий оплаты платёж по просьбе покупателя.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	p, err := h.svc.Payments.Cancel(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPaymentResponse(p, false))
}
