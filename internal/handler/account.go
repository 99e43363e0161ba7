package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamestore/internal/model"
)

const (
	defaultRecommendations = 5
	maxRecommendations     = 20
)

// GetLoyalty возвращает бонусный счёт текущего пользователя.
func (h *Handler) GetLoyalty(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	snap, err := h.svc.Loyalty.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newLoyaltyResponse(snap))
}

type pointsRequest struct {
	Points int64 `json:"points"`
}

// RedeemPoints списывает баллы текущего пользователя.
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	userID, name, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req pointsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	snap, err := h.svc.Loyalty.UsePoints(r.Context(), userID, req.Points, model.PointReasonRedeem, model.PointMetadata{DisplayName: name})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.svc.Users.RecordActivity(r.Context(), model.Activity{
		UserID:  userID,
		Type:    model.ActivityPointsRedeemed,
		Details: map[string]string{"points": strconv.FormatInt(req.Points, 10)},
	})

	h.writeJSON(w, http.StatusOK, newLoyaltyResponse(snap))
}

// GetActivity возвращает последние действия текущего пользователя.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	items, err := h.svc.Users.Activity(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]activityResponse, 0, len(items))
	for _, a := range items {
		resp = append(resp, activityResponse{
			Type:      string(a.Type),
			ProductID: a.ProductID,
			PaymentID: a.PaymentID,
			Details:   a.Details,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type preferencesRequest struct {
	Categories []string         `json:"categories"`
	MaxPrice   *decimal.Decimal `json:"max_price,omitempty"`
}

// SetPreferences сохраняет пожелания текущего пользователя для рекомендаций.
func (h *Handler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req preferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	categories := make([]string, 0, len(req.Categories))
	for _, c := range req.Categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			categories = append(categories, c)
		}
	}

	u, err := h.svc.Users.SetPreferences(r.Context(), userID, model.Preferences{Categories: categories, MaxPrice: req.MaxPrice})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newUserResponse(u))
}

// Recommendations подбирает товары для текущего пользователя.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit, err := queryInt(r, "limit", defaultRecommendations)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if limit == 0 || limit > maxRecommendations {
		limit = defaultRecommendations
	}

	recs, err := h.svc.Advisor.Recommend(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(recs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]recommendationResponse, 0, len(recs))
	for i := range recs {
		resp = append(resp, recommendationResponse{
			Product: newProductResponse(&recs[i].Product, false),
			Score:   recs[i].Score,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type askRequest struct {
	Question string `json:"question"`
}

// Ask отвечает на вопрос покупателя из базы частых вопросов.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.badRequest(w, "question is required")
		return
	}

	h.writeJSON(w, http.StatusOK, h.svc.Advisor.Ask(req.Question))
}
