package httpadapter

import (
	"net/http"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidScope):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRunCanceled):
		return http.StatusRequestTimeout
	case domain.IsKind(err, domain.ErrGeneration):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
