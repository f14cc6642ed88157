package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application-level error with HTTP status code
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
	cause      error
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause attached with Wrap.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is reports whether target carries the same code, so predefined errors can be
// matched with errors.Is regardless of message or detail.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Error codes
const (
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeForbidden           = "forbidden"
	ErrCodeNotFound            = "not_found"
	ErrCodeBadRequest          = "bad_request"
	ErrCodeConflict            = "conflict"
	ErrCodeValidation          = "validation_failed"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeInternalError       = "internal_error"
	ErrCodeInvalidNonce        = "nonce_invalid"
	ErrCodeInvalidSignature    = "signature_invalid"
	ErrCodeWalletAlreadyLinked = "wallet_already_linked"
	ErrCodeIdentityDeleted     = "identity_deleted"
)

// Predefined errors
var (
	ErrUnauthorized = &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       ErrCodeForbidden,
		Message:    "Access denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       ErrCodeBadRequest,
		Message:    "Invalid request parameters",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrConflict = &AppError{
		Code:       ErrCodeConflict,
		Message:    "Request conflict",
		StatusCode: http.StatusConflict,
	}

	ErrNonceInvalid = &AppError{
		Code:       ErrCodeInvalidNonce,
		Message:    "Nonce invalid or expired",
		StatusCode: http.StatusBadRequest,
	}

	ErrSignatureInvalid = &AppError{
		Code:       ErrCodeInvalidSignature,
		Message:    "Invalid signature/address/base64",
		StatusCode: http.StatusBadRequest,
	}

	ErrWalletAlreadyLinked = &AppError{
		Code:       ErrCodeWalletAlreadyLinked,
		Message:    "Wallet already linked",
		StatusCode: http.StatusBadRequest,
	}

	ErrIdentityDeleted = &AppError{
		Code:       ErrCodeIdentityDeleted,
		Message:    "This account has been deleted",
		StatusCode: http.StatusForbidden,
	}

	ErrRateLimited = &AppError{
		Code:       ErrCodeRateLimited,
		Message:    "Too many requests",
		StatusCode: http.StatusTooManyRequests,
	}
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		StatusCode: statusCode,
	}
}

// Forbidden creates a forbidden error whose message tells the client why.
func Forbidden(reason string) *AppError {
	return &AppError{
		Code:       ErrCodeForbidden,
		Message:    reason,
		StatusCode: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error with a client-facing message.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Validation creates a validation error for empty or oversized input.
func Validation(message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NotFound creates a not found error naming the missing entity.
func NotFound(entity string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		StatusCode: http.StatusNotFound,
	}
}

// Conflict creates a conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// Internal wraps a storage or transaction failure. The cause is kept for
// logging and never rendered to clients.
func Internal(cause error) *AppError {
	return Wrap(cause, ErrInternalError)
}

// Wrap attaches cause to a copy of base.
func Wrap(cause error, base *AppError) *AppError {
	return &AppError{
		Code:       base.Code,
		Message:    base.Message,
		Detail:     base.Detail,
		StatusCode: base.StatusCode,
		cause:      cause,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
