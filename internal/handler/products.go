package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/validation"
)

// ListProducts ищет товары по параметрам type, q, min_price, max_price, available и limit.
// По умолчанию показываются только доступные товары.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	available := true
	if raw := q.Get("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(w, "invalid available")
			return
		}
		available = v
	}

	minPrice, err := queryDecimal(r, "min_price")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	maxPrice, err := queryDecimal(r, "max_price")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	products, err := h.svc.Catalog.Search(r.Context(), model.ProductFilter{
		Type:      q.Get("type"),
		Query:     q.Get("q"),
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
		Available: &available,
		Limit:     limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(products) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, newProductResponse(&products[i], false))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetProduct возвращает карточку товара и учитывает просмотр.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := currentUser(r)

	p, err := h.svc.Catalog.View(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newProductResponse(p, false))
}

// GetPrice рассчитывает цену товара с лучшей действующей акцией.
// Необязательный параметр code задаёт промокод.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if !validation.IsValidPromoCode(code) {
		h.badRequest(w, "invalid promo code")
		return
	}

	p, err := h.svc.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	quote, err := h.svc.Promotions.ResolvePriceWithCode(r.Context(), p.ID, p.Price, p.Type, code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

// ListPromotions возвращает действующие акции. Акции по промокоду не раскрываются.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	active, err := h.svc.Promotions.ActivePromotions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	promos := make([]model.Promotion, 0, len(active))
	for _, p := range active {
		if p.Code == "" {
			promos = append(promos, p)
		}
	}

	if len(promos) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, promos)
}
