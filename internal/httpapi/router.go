package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *CartHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Patch("/", h.PatchCart)
		r.Delete("/", h.ClearCart)

		r.Post("/items", h.AddItem)
		r.Patch("/items/{id}", h.UpdateItem)
		r.Delete("/items/{id}", h.RemoveItem)

		r.Post("/reprice", h.Reprice)
		r.Post("/batch", h.Batch)
	})

	return r
}
