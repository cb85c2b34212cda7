package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-prep/internal/engine"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
)

// sessionError maps engine and session service errors onto an HTTP status and code.
func sessionError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrNotSessionOwner):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrSessionAlreadyActive):
		return http.StatusConflict, response.ErrSessionAlreadyActive
	case errors.Is(err, service.ErrUnknownSubject):
		return http.StatusBadRequest, response.ErrUnknownSubject
	case errors.Is(err, engine.ErrSessionFailed), errors.Is(err, engine.ErrGenerationFailure), errors.Is(err, engine.ErrNoQuestions):
		return http.StatusBadGateway, response.ErrGenerationFailed
	case errors.Is(err, engine.ErrSlotNotReady):
		return http.StatusConflict, response.ErrSlotNotReady
	case errors.Is(err, engine.ErrSlotOutOfRange):
		return http.StatusBadRequest, response.ErrSlotOutOfRange
	case errors.Is(err, engine.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.Is(err, engine.ErrSessionClosed):
		return http.StatusConflict, response.ErrSessionClosed
	case errors.Is(err, engine.ErrWindowNotComplete):
		return http.StatusConflict, response.ErrWindowNotComplete
	case errors.Is(err, engine.ErrNoNextWindow):
		return http.StatusConflict, response.ErrNoNextWindow
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
