package invoices

import "github.com/go-chi/chi/v5"

// MountRoutes registers invoice endpoints and quote conversion under r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.List)
	r.Post("/invoices", h.Create)
	r.Get("/invoices/{id}", h.Show)
	r.Put("/invoices/{id}", h.Update)
	r.Delete("/invoices/{id}", h.Delete)
	r.Post("/invoices/{id}/send", h.Send)
	r.Post("/invoices/{id}/cancel", h.Cancel)
	r.Post("/quotes/{id}/convert", h.Convert)
}
