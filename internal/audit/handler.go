package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-garage/garage/internal/platform/httpx"
	"github.com/atelier-garage/garage/internal/shared"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the timeline endpoints under r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.Timeline)
	r.Get("/invoices/{id}/audit", h.InvoiceTrail)
}

// Timeline lists audit entries filtered by query parameters.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		Limit:    httpx.IntQuery(r, "limit", 0),
		Offset:   httpx.IntQuery(r, "offset", 0),
	}
	if raw := q.Get("actor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.Validation("invalid actor_id", map[string]string{"actor_id": "numeric"}))
			return
		}
		filters.ActorID = id
	}
	var err error
	if filters.From, err = parseTime(q.Get("from")); err != nil {
		httpx.RespondError(w, h.logger, shared.Validation("invalid from", map[string]string{"from": "datetime"}))
		return
	}
	if filters.To, err = parseTime(q.Get("to")); err != nil {
		httpx.RespondError(w, h.logger, shared.Validation("invalid to", map[string]string{"to": "datetime"}))
		return
	}
	h.respond(w, r, filters)
}

// InvoiceTrail lists the audit entries of one invoice.
func (h *Handler) InvoiceTrail(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.respond(w, r, TimelineFilters{
		Entity:   "invoice",
		EntityID: strconv.FormatInt(id, 10),
		Limit:    httpx.IntQuery(r, "limit", 0),
		Offset:   httpx.IntQuery(r, "offset", 0),
	})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, filters TimelineFilters) {
	res, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
