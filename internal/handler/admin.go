package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/service"
	"github.com/mmeshcher/gamestore/internal/validation"
)

// adminID возвращает Discord ID администратора. Маршруты закрыты RequireAdmin.
func adminID(r *http.Request) string {
	id, _, _ := currentUser(r)
	return id
}

// PendingPayments возвращает платежи, ожидающие решения администратора.
func (h *Handler) PendingPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.svc.Payments.ListPendingApprovals(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, newPaymentList(payments, false))
}

// ApprovePayment подтверждает платёж и выдаёт товар покупателю.
func (h *Handler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Payments.Approve(r.Context(), chi.URLParam(r, "id"), adminID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPaymentResponse(p, false))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectPayment отклоняет платёж. Тело запроса необязательно.
func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.badRequest(w, err.Error())
			return
		}
	}

	p, err := h.svc.Payments.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason, adminID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPaymentResponse(p, false))
}

type bankConfirmationRequest struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// ConfirmBankTransfer фиксирует результат проверки перевода в банке.
func (h *Handler) ConfirmBankTransfer(w http.ResponseWriter, r *http.Request) {
	var req bankConfirmationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	p, err := h.svc.Payments.ConfirmFromGateway(r.Context(), chi.URLParam(r, "id"), model.GatewayResult{
		Success: req.Success,
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPaymentResponse(p, false))
}

type productRequest struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Price       decimal.Decimal   `json:"price"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details"`
	Available   *bool             `json:"available,omitempty"`
}

func (req productRequest) input() service.ProductInput {
	return service.ProductInput{
		Name:        req.Name,
		Type:        req.Type,
		Price:       req.Price,
		Description: req.Description,
		Details:     req.Details,
		Available:   req.Available,
	}
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	p, err := h.svc.Catalog.Create(r.Context(), adminID(r), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newProductResponse(p, true))
}

// UpdateProduct изменяет товар.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	p, err := h.svc.Catalog.Update(r.Context(), adminID(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newProductResponse(p, true))
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

// SetProductAvailability снимает товар с продажи или возвращает его.
func (h *Handler) SetProductAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	p, err := h.svc.Catalog.SetAvailability(r.Context(), adminID(r), chi.URLParam(r, "id"), req.Available)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newProductResponse(p, true))
}

type promotionRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Type          string     `json:"type"`
	Discount      int        `json:"discount"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	DurationHours int        `json:"duration_hours"`
	ProductIDs    []string   `json:"product_ids"`
	Categories    []string   `json:"categories"`
	UsageLimit    int        `json:"usage_limit"`
	Code          string     `json:"code,omitempty"`
}

func (req promotionRequest) input() service.PromotionInput {
	in := service.PromotionInput{
		Title:         req.Title,
		Description:   req.Description,
		Type:          req.Type,
		Discount:      req.Discount,
		DurationHours: req.DurationHours,
		ProductIDs:    req.ProductIDs,
		Categories:    req.Categories,
		UsageLimit:    req.UsageLimit,
		Code:          req.Code,
	}
	if req.StartsAt != nil {
		in.StartsAt = *req.StartsAt
	}
	return in
}

func (h *Handler) decodePromotion(w http.ResponseWriter, r *http.Request) (promotionRequest, bool) {
	var req promotionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return req, false
	}
	if !validation.IsValidPromoCode(req.Code) {
		h.badRequest(w, "invalid promo code")
		return req, false
	}
	return req, true
}

// CreatePromotion создаёт акцию.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePromotion(w, r)
	if !ok {
		return
	}

	p, err := h.svc.Promotions.Create(r.Context(), adminID(r), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, p)
}

// UpdatePromotion изменяет действующую акцию.
func (h *Handler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePromotion(w, r)
	if !ok {
		return
	}

	p, err := h.svc.Promotions.Update(r.Context(), adminID(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

// EndPromotion досрочно завершает акцию.
func (h *Handler) EndPromotion(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Promotions.End(r.Context(), adminID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

// GrantPoints начисляет баллы пользователю вручную.
func (h *Handler) GrantPoints(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validation.IsValidUserID(userID) {
		h.badRequest(w, "invalid user id")
		return
	}

	var req pointsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	snap, err := h.svc.Loyalty.AddPoints(r.Context(), userID, req.Points, model.PointReasonManual, model.PointMetadata{AdminID: adminID(r)})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newLoyaltyResponse(snap))
}

type blockRequest struct {
	Reason string `json:"reason"`
}

// BlockUser запрещает пользователю оформлять покупки.
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !validation.IsValidUserID(userID) {
		h.badRequest(w, "invalid user id")
		return
	}

	var req blockRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.badRequest(w, err.Error())
			return
		}
	}

	u, err := h.svc.Users.Block(r.Context(), userID, req.Reason, adminID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newUserResponse(u))
}

// UnblockUser снимает блокировку.
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !validation.IsValidUserID(userID) {
		h.badRequest(w, "invalid user id")
		return
	}

	u, err := h.svc.Users.Unblock(r.Context(), userID, adminID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newUserResponse(u))
}

// ListAudit возвращает записи журнала аудита по параметрам category, actor, since и limit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	f := model.AuditFilter{
		Category: model.AuditCategory(q.Get("category")),
		ActorID:  q.Get("actor"),
		Limit:    limit,
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.badRequest(w, "invalid since")
			return
		}
		f.Since = &since
	}

	entries, err := h.svc.Audit.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, auditResponse{
			ID:        e.ID,
			Action:    e.Action,
			Category:  string(e.Category),
			Severity:  string(e.Severity),
			Status:    string(e.Status),
			ActorID:   e.ActorID,
			TargetID:  e.TargetID,
			ProductID: e.ProductID,
			PaymentID: e.PaymentID,
			Details:   e.Details,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
