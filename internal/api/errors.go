package api

import (
	"errors"
	"net/http"

	"pipemedic/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var cycle *domain.CycleError
	var transition *domain.InvalidTransitionError
	var forbidden *domain.ForbiddenQueryError
	var inProgress *domain.FixInProgressError
	var noBackup *domain.NoBackupError
	var timeout *domain.TimeoutError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &cycle):
		return http.StatusConflict
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &inProgress):
		return http.StatusConflict
	case errors.As(err, &noBackup):
		return http.StatusConflict
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
