package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/response"
	"github.com/rurallearn/rurallearn-backend/internal/service"
)

// classify maps a service error onto an HTTP status, an error code and
// optional field details. ok is false for errors outside the service taxonomy.
func classify(err error) (status int, code response.ErrCode, fields map[string]string, ok bool) {
	var verr *service.ValidationError
	var uq *service.UnknownQuestionError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, response.ErrValidation, verr.Fields, true
	case errors.As(err, &uq):
		return http.StatusUnprocessableEntity, response.ErrUnknownQuestion,
			map[string]string{"question_id": uq.QuestionID.String()}, true
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials, nil, true
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, response.ErrInvalidRefreshToken, nil, true
	case errors.Is(err, service.ErrAccessDenied):
		return http.StatusForbidden, response.ErrAccessDenied, nil, true
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound, nil, true
	case errors.Is(err, service.ErrInvalidSessionState):
		return http.StatusConflict, response.ErrInvalidSessionState, nil, true
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted, nil, true
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, response.ErrEmailTaken, nil, true
	default:
		return http.StatusServiceUnavailable, response.ErrServiceUnavailable, nil, false
	}
}

// failWith writes a service error in the response envelope. Errors outside
// the service taxonomy are logged and reported as 503.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code, fields, ok := classify(err)
	if !ok {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	if fields != nil {
		response.FailWithFields(c, status, code, fields)
		return
	}
	response.Fail(c, status, code)
}

// paramID parses a UUID path parameter, writing a 400 when it is malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
