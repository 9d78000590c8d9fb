// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/atelier-garage/garage/internal/shared"
)

var kindStatus = map[shared.Kind]int{
	shared.KindNotFound:     http.StatusNotFound,
	shared.KindPolicy:       http.StatusUnprocessableEntity,
	shared.KindConflict:     http.StatusConflict,
	shared.KindValidation:   http.StatusBadRequest,
	shared.KindTransient:    http.StatusServiceUnavailable,
	shared.KindUnauthorized: http.StatusUnauthorized,
}

// StatusFor returns the HTTP status for a structured error kind.
func StatusFor(kind shared.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		err = ValidationError(verrs)
	}

	se, ok := shared.AsError(err)
	if !ok {
		if logger != nil {
			logger.Error("unhandled error", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "", "", nil)
		return
	}

	status := StatusFor(se.Kind)
	if se.Kind == shared.KindTransient && logger != nil {
		logger.Warn("storage failure", slog.String("op", se.Message), slog.Any("error", se.Err))
	}
	Problem(w, status, http.StatusText(status), se.Error(), se.Kind, se.Detail)
}

// ValidationError converts validator failures into a structured validation error
// keyed by JSON field name.
func ValidationError(verrs validator.ValidationErrors) *shared.Error {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return shared.Validation("invalid request payload", fields)
}
