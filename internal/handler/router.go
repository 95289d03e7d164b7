package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/coffeetime-storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware заглушки.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	if h.metricsHandler != nil {
		r.Handle("/metrics", h.metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Post("/auth/register", h.Register)

		r.Get("/products", h.Products)
		r.Get("/products/{id}", h.Product)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/auth/me", h.Me)

			r.Get("/orders", h.GetOrders)
			r.Post("/orders", h.CreateOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
			r.Patch("/orders/{id}", h.PatchOrder)
			r.Delete("/orders/{id}", h.DeleteOrder)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Страница не найдена.")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
