package payments

import "github.com/go-chi/chi/v5"

// MountRoutes registers payment endpoints under r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices/{id}/payments", h.List)
	r.Post("/invoices/{id}/payments", h.Record)
}
