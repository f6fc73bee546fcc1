package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/ielts-listening/internal/backend"
	"github.com/stemsi/ielts-listening/internal/render"
	"github.com/stemsi/ielts-listening/internal/response"
	"github.com/stemsi/ielts-listening/internal/service"
	"github.com/stemsi/ielts-listening/internal/session"
	"github.com/stemsi/ielts-listening/internal/store"
)

// classify maps a service error to its HTTP status and error code. Unknown
// errors are internal.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNoAttempt):
		return http.StatusNotFound, response.ErrNoAttempt
	case errors.Is(err, service.ErrInvalidPart):
		return http.StatusBadRequest, response.ErrInvalidPart
	case errors.Is(err, service.ErrInvalidDuration):
		return http.StatusBadGateway, response.ErrInvalidDuration
	case errors.Is(err, service.ErrUnresolvedNumber), errors.Is(err, render.ErrUnresolved):
		return http.StatusUnprocessableEntity, response.ErrUnresolvedNumber
	case errors.Is(err, service.ErrWrongInteraction):
		return http.StatusUnprocessableEntity, response.ErrWrongInteraction
	case errors.Is(err, service.ErrNoWidget), errors.Is(err, render.ErrNotInGroup):
		return http.StatusNotFound, response.ErrNoWidget
	case errors.Is(err, render.ErrUnknownOption):
		return http.StatusUnprocessableEntity, response.ErrUnknownOption
	case errors.Is(err, render.ErrNotPlaced):
		return http.StatusConflict, response.ErrOptionNotPlaced

	case errors.Is(err, session.ErrAlreadyStarted):
		return http.StatusConflict, response.ErrAlreadyStarted
	case errors.Is(err, session.ErrNotStarted):
		return http.StatusConflict, response.ErrNotStarted
	case errors.Is(err, session.ErrSubmitNotAllowed):
		return http.StatusConflict, response.ErrSubmitNotAllowed
	case errors.Is(err, session.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, store.ErrFrozen):
		return http.StatusConflict, response.ErrSubmitting
	case errors.Is(err, store.ErrHighlightNotFound):
		return http.StatusNotFound, response.ErrHighlightNotFound

	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, response.ErrExamNotAvailable
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, response.ErrBackendUnauthorized
	case errors.Is(err, backend.ErrUnexpected), errors.Is(err, backend.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, response.ErrBackendUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes the envelope for err and logs internal errors.
func (h *ListeningHandler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
