// Package errors defines the sentinel errors shared across the pipeline and
// an AppError wrapper that carries an HTTP status code for API responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrThrottled marks a retryable rate-limit rejection from the
	// inference service, distinct from a terminal service error.
	ErrThrottled = errors.New("inference service throttled")
	// ErrInferenceFailed marks a non-retryable inference service error.
	ErrInferenceFailed = errors.New("inference service failed")
	// ErrMalformedItem marks an item payload that could not be decoded.
	ErrMalformedItem = errors.New("malformed item payload")
	// ErrNotReady is returned when not every batch has completed yet.
	ErrNotReady = errors.New("not all batches completed")
	// ErrConnectionGone marks a push delivery failure indicating the
	// subscriber disconnected and should be deregistered.
	ErrConnectionGone = errors.New("connection gone")
	// ErrInvalidInput marks a bad API request.
	ErrInvalidInput = errors.New("invalid input")
)

// AppError wraps a sentinel error with a human-readable message and an HTTP
// status code for the dispatcher API.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status the dispatcher API should
// return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInferenceFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
