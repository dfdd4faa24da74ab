package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Domain errors surfaced to callers. Infrastructure failures are returned
// wrapped and are not matched by any of these.
var (
	ErrNotFound            = errors.New("not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrInvalidSessionState = errors.New("invalid session state")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnknownQuestion     = errors.New("unknown question")
	ErrValidation          = errors.New("validation error")
	ErrAlreadySubmitted    = errors.New("already submitted")
	ErrEmailTaken          = errors.New("email already registered")
)

// UnknownQuestionError names the offending question id.
type UnknownQuestionError struct {
	QuestionID uuid.UUID
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("unknown question %s", e.QuestionID)
}

func (e *UnknownQuestionError) Unwrap() error { return ErrUnknownQuestion }

// ValidationError carries per-field messages keyed by JSON field path.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
