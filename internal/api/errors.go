package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/service"
	"github.com/phrazzld/lector/internal/store"
)

// MapErrorToStatusCode maps service errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case store.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, service.ErrTaskFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Internal
// details such as hosts and driver errors never reach the response.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, domain.ErrValidation):
		return err.Error()
	case errors.Is(err, store.ErrDocumentNotFound):
		return "Document not found"
	case store.IsNotFoundError(err):
		return "Not found"
	case errors.Is(err, service.ErrNotReady):
		return "Task result is not ready"
	case errors.Is(err, service.ErrTaskFailed):
		return "Task failed"
	case errors.Is(err, domain.ErrQueueUnavailable):
		return "Task queue is unavailable, try again later"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError logs err and writes the mapped error response.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status := MapErrorToStatusCode(err)
	log := loggerFrom(r)
	if status >= http.StatusInternalServerError {
		log.Error(operation+" failed", slog.String("error", err.Error()))
	} else {
		log.Debug(operation+" rejected",
			slog.String("error", err.Error()),
			slog.Int("status_code", status))
	}
	RespondWithError(w, r, status, GetSafeErrorMessage(err))
}
