package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError carries an HTTP status alongside the message so handlers can map
// failures to responses without inspecting error strings.
type AppError struct {
	StatusCode int
	Message    string
	Data       interface{}
	Err        error

	// RetryAfter is set on rate-limit errors and surfaces as the
	// Retry-After response header, in seconds.
	RetryAfter int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(statusCode int, message string, err error) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// NewConfigurationError signals the operator misconfigured the service, not
// that the caller sent a bad request.
func NewConfigurationError(missing ...string) *AppError {
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Message:    "Service misconfigured",
		Data:       map[string]interface{}{"missing": strings.Join(missing, ", ")},
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusUnauthorized,
		Message:    message,
	}
}

func NewRateLimitError(retryAfterSeconds int) *AppError {
	return &AppError{
		StatusCode: http.StatusTooManyRequests,
		Message:    "Rate limit exceeded",
		RetryAfter: retryAfterSeconds,
	}
}

func NewTimeoutError(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
	}
}

func NewUpstreamError(err error, message string) *AppError {
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Err:        err,
	}
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Err:        err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal server error",
		Err:        err,
	}
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
