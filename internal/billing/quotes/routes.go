package quotes

import "github.com/go-chi/chi/v5"

// MountRoutes registers quote endpoints under r. Conversion to an invoice is
// mounted by the invoices package.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/quotes", h.List)
	r.Post("/quotes", h.Create)
	r.Get("/quotes/{id}", h.Show)
	r.Put("/quotes/{id}", h.Update)
	r.Delete("/quotes/{id}", h.Delete)
	r.Patch("/quotes/{id}/status", h.ChangeStatus)
	r.Post("/quotes/{id}/send", h.Send)
	r.Get("/quotes/{id}/events", h.Events)
}
