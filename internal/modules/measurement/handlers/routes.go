package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all measurement routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/measurement", func(r chi.Router) {
		r.Get("/catalog", h.HandleGetCatalog)
		r.Post("/pmf", h.HandlePMF)
		r.Post("/sample", h.HandleSample)
		r.Get("/sample/stream", h.HandleSampleStream)
		r.Post("/estimate", h.HandleEstimate)

		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetRun(w, r, chi.URLParam(r, "id"))
		})
	})
}
