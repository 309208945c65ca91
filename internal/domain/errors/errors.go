package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrChainUnavailable   = errors.New("chain unavailable")
	ErrBroadcastFailed    = errors.New("broadcast failed")
	ErrConfirmationFailed = errors.New("confirmation failed")
	ErrConflict           = errors.New("concurrent modification")
	ErrScanInProgress     = errors.New("scan already in progress")
)

// Error codes rendered in API responses
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeBroadcastFailed    = "BROADCAST_FAILED"
	CodeChainUnavailable   = "CHAIN_UNAVAILABLE"
	CodeConfirmationFailed = "CONFIRMATION_FAILED"
	CodeConflict           = "CONFLICT"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidRequest, message, ErrInvalidRequest)
}

func InsufficientFunds(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInsufficientFunds, message, ErrInsufficientFunds)
}

// ConfirmationFailed reports a broadcast transfer that did not make it
// into a successful block
func ConfirmationFailed(message string) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, CodeConfirmationFailed, message, ErrConfirmationFailed)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}

// FromError maps a wrapped domain error onto its HTTP representation.
// Client-facing errors keep the full message; unknown errors are hidden
// behind a generic 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return NewAppError(http.StatusNotFound, CodeNotFound, err.Error(), err)
	case errors.Is(err, ErrInsufficientFunds):
		return NewAppError(http.StatusBadRequest, CodeInsufficientFunds, err.Error(), err)
	case errors.Is(err, ErrBroadcastFailed):
		return NewAppError(http.StatusBadRequest, CodeBroadcastFailed, err.Error(), err)
	case errors.Is(err, ErrInvalidRequest):
		return NewAppError(http.StatusBadRequest, CodeInvalidRequest, err.Error(), err)
	case errors.Is(err, ErrConfirmationFailed):
		return NewAppError(http.StatusUnprocessableEntity, CodeConfirmationFailed, err.Error(), err)
	case errors.Is(err, ErrConflict):
		return NewAppError(http.StatusConflict, CodeConflict, err.Error(), err)
	case errors.Is(err, ErrChainUnavailable):
		return NewAppError(http.StatusServiceUnavailable, CodeChainUnavailable, err.Error(), err)
	default:
		return InternalError(err)
	}
}
