package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable machine-readable code of an evaluation failure.
type ErrorKind string

const (
	ErrInvalidInput     ErrorKind = "INVALID_INPUT"
	ErrModelNotFound    ErrorKind = "MODEL_NOT_FOUND"
	ErrServiceNotFound  ErrorKind = "SERVICE_NOT_FOUND"
	ErrTimeout          ErrorKind = "TIMEOUT"
	ErrExecutionFailure ErrorKind = "EXECUTION_FAILURE"
	ErrMalformedOutput  ErrorKind = "MALFORMED_OUTPUT"
	ErrReportedError    ErrorKind = "REPORTED_ERROR"
	ErrSpawnFailure     ErrorKind = "SPAWN_FAILURE"
	ErrInternal         ErrorKind = "INTERNAL_ERROR"
)

// HTTPStatus maps a kind onto the transport status used by the API.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrInvalidInput:
		return http.StatusBadRequest
	case ErrModelNotFound, ErrServiceNotFound:
		return http.StatusServiceUnavailable
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrExecutionFailure, ErrMalformedOutput, ErrReportedError, ErrSpawnFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// EvaluationError is a failure with a stable kind and a human-readable message.
type EvaluationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EvaluationError) Unwrap() error { return e.Err }

// NewEvaluationError creates an error of the given kind.
func NewEvaluationError(kind ErrorKind, message string) *EvaluationError {
	return &EvaluationError{Kind: kind, Message: message}
}

// WithError attaches an underlying cause.
func (e *EvaluationError) WithError(err error) *EvaluationError {
	e.Err = err
	return e
}

// AsEvaluationError extracts an *EvaluationError from err, wrapping anything
// else as INTERNAL_ERROR.
func AsEvaluationError(err error) *EvaluationError {
	if err == nil {
		return nil
	}
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee
	}
	return NewEvaluationError(ErrInternal, "evaluation failed").WithError(err)
}

// KindOf returns the kind of err, or "" when err is nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsEvaluationError(err).Kind
}
