package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/atelier-garage/garage/internal/platform/httpx"
	"github.com/atelier-garage/garage/internal/shared"
)

type commitWriter struct {
	http.ResponseWriter
	ctx           context.Context
	sess          *shared.Session
	manager       *shared.SessionManager
	logger        *slog.Logger
	headerWritten bool
}

func (w *commitWriter) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.headerWritten = true
		if err := w.manager.Commit(w.ctx, w.ResponseWriter, w.sess); err != nil {
			w.logger.Error("commit session", slog.Any("error", err))
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *commitWriter) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

// SessionMiddleware loads the session into the request context and persists
// any change before the response headers go out.
func SessionMiddleware(manager *shared.SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := manager.Load(ctx, r)
			if err != nil {
				logger.Error("load session", slog.Any("error", err))
				httpx.RespondError(w, logger, shared.Transient("load session", err))
				return
			}
			ctx = shared.ContextWithSession(ctx, sess)
			wrapped := &commitWriter{
				ResponseWriter: w,
				ctx:            context.WithoutCancel(ctx),
				sess:           sess,
				manager:        manager,
				logger:         logger,
			}
			next.ServeHTTP(wrapped, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests without an authenticated admin session.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shared.SessionFromContext(r.Context()).Authenticated() {
			httpx.RespondError(w, nil, shared.Unauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
