package clients

import "github.com/go-chi/chi/v5"

// MountRoutes registers client endpoints under r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/clients", h.List)
	r.Post("/clients", h.Create)
	r.Get("/clients/{id}", h.Show)
	r.Put("/clients/{id}", h.Update)
}
