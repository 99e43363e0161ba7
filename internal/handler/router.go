package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/gamestore/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.RequestLogger(h.logger))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)
		r.Use(h.authMiddleware.Middleware)

		r.Post("/checkout", h.Checkout)

		r.Get("/payments", h.ListPayments)
		r.Get("/payments/{id}", h.GetPayment)
		r.Post("/payments/{id}/cancel", h.CancelPayment)

		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/products/{id}/price", h.GetPrice)

		r.Get("/promotions", h.ListPromotions)

		r.Get("/loyalty", h.GetLoyalty)
		r.Post("/loyalty/redeem", h.RedeemPoints)

		r.Get("/me/activity", h.GetActivity)
		r.Put("/me/preferences", h.SetPreferences)
		r.Get("/recommendations", h.Recommendations)

		r.Post("/assistant/ask", h.Ask)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.RequireAdmin)

			r.Get("/payments/pending", h.PendingPayments)
			r.Post("/payments/{id}/approve", h.ApprovePayment)
			r.Post("/payments/{id}/reject", h.RejectPayment)
			r.Post("/payments/{id}/bank-confirmation", h.ConfirmBankTransfer)

			r.Post("/products", h.CreateProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Post("/products/{id}/availability", h.SetProductAvailability)

			r.Post("/promotions", h.CreatePromotion)
			r.Put("/promotions/{id}", h.UpdatePromotion)
			r.Post("/promotions/{id}/end", h.EndPromotion)

			r.Post("/loyalty/{userID}/grant", h.GrantPoints)

			r.Post("/users/{id}/block", h.BlockUser)
			r.Post("/users/{id}/unblock", h.UnblockUser)

			r.Get("/audit", h.ListAudit)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
