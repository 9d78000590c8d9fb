package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atelier-garage/garage/internal/audit"
	"github.com/atelier-garage/garage/internal/auth"
	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/invoices"
	"github.com/atelier-garage/garage/internal/billing/payments"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/observability"
	"github.com/atelier-garage/garage/internal/platform/httpx"
	"github.com/atelier-garage/garage/internal/shared"
	"github.com/atelier-garage/garage/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	Metrics         *observability.Metrics
	AuthHandler     *auth.Handler
	ClientsHandler  *clients.Handler
	QuotesHandler   *quotes.Handler
	InvoicesHandler *invoices.Handler
	PaymentsHandler *payments.Handler
	AuditHandler    *audit.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi router of the billing API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path, shared.KindNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here", "", nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Use(chimw.AllowContentType("application/json"))
		r.Use(chimw.NoCache)
		if params.ClientsHandler != nil {
			params.ClientsHandler.MountRoutes(r)
		}
		if params.QuotesHandler != nil {
			params.QuotesHandler.MountRoutes(r)
		}
		if params.InvoicesHandler != nil {
			params.InvoicesHandler.MountRoutes(r)
		}
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
	})

	return r
}
