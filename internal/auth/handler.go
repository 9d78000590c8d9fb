package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/atelier-garage/garage/internal/platform/httpx"
	"github.com/atelier-garage/garage/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  *shared.SessionManager
	validator *validator.Validate
	loginRate int
	now       func() time.Time
}

// NewHandler constructs a Handler. loginRate caps login attempts per IP and
// minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, loginRate int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		validator: shared.NewValidator(),
		loginRate: loginRate,
		now:       time.Now,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	login := http.HandlerFunc(h.handleLogin)
	if h.loginRate > 0 {
		r.With(httprate.Limit(h.loginRate, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(h.tooManyAttempts),
		)).Post("/login", login)
	} else {
		r.Post("/login", login)
	}
	r.Post("/logout", h.handleLogout)
	r.With(RequireAdmin).Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	admin, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("admin login rejected", slog.String("remote", r.RemoteAddr))
		httpx.RespondError(w, h.logger, err)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, h.logger, shared.Transient("session unavailable", nil))
		return
	}
	sess.Authenticate(admin.ID, admin.Email, h.now().UTC())
	httpx.JSON(w, http.StatusOK, admin)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && !sess.IsNew() {
		h.sessions.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, Admin{ID: sess.AdminID, Email: sess.Email})
}

func (h *Handler) tooManyAttempts(w http.ResponseWriter, r *http.Request) {
	httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many login attempts, retry later", "", nil)
}
