// Package errors defines the application error type and the catalog of
// sentinels the API maps onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable machine code and the HTTP status it
// renders as. Internal carries the cause for server-side logs and never
// reaches clients.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	default:
		return e.Message
	}
}

// Unwrap exposes the internal cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so sentinel comparisons survive WithMessage copies.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

func (e *AppError) clone() *AppError {
	cpy := *e
	return &cpy
}

// WithInternal returns a copy carrying err as the cause.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	c := e.clone()
	c.Internal = err
	return c
}

// WithMessage returns a copy carrying a request-specific message. Code and
// status are preserved so clients can still match on them.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}
	c := e.clone()
	c.Message = message
	return c
}

// WithMessagef is WithMessage with fmt.Sprintf semantics.
func (e *AppError) WithMessagef(format string, args ...any) *AppError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Sentinel errors shared by handlers and middleware.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrTokenRequired is returned when no bearer token or session cookie
	// accompanied the request.
	ErrTokenRequired = &AppError{
		Code:       "AUTH_TOKEN_REQUIRED",
		Message:    "Access token required",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrTokenFormat is returned when the Authorization header is present but is
	// not a well-formed bearer credential.
	ErrTokenFormat = &AppError{
		Code:       "AUTH_TOKEN_FORMAT",
		Message:    "Invalid token format",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrTokenExpired marks an authentic token whose validity window has passed.
	ErrTokenExpired = &AppError{
		Code:       "AUTH_TOKEN_EXPIRED",
		Message:    "Token expired",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrTokenInvalid marks a structurally broken or wrongly signed token.
	ErrTokenInvalid = &AppError{
		Code:       "AUTH_TOKEN_INVALID",
		Message:    "Invalid token",
		StatusCode: http.StatusForbidden,
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrSessionNotFound is returned on cookie-bound flows whose session record
	// no longer exists; handlers clear the session cookie alongside it.
	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Session not found or expired",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInsufficientRole = &AppError{
		Code:       "INSUFFICIENT_ROLE",
		Message:    "Insufficient role for this operation",
		StatusCode: http.StatusForbidden,
	}

	// ErrCrossTenantDenied is the single denial shape for school-isolation
	// violations.
	ErrCrossTenantDenied = &AppError{
		Code:       "CROSS_TENANT_DENIED",
		Message:    "Access to another school's data is not permitted",
		StatusCode: http.StatusForbidden,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrCSRFInvalid = &AppError{
		Code:       "CSRF_TOKEN_INVALID",
		Message:    "Invalid CSRF token",
		StatusCode: http.StatusForbidden,
	}
)

// New builds an application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// FromError extracts the AppError from err, wrapping anything else in
// ErrInternalServer. A nil err yields nil.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest carries a caller-supplied message under the generic
// BAD_REQUEST code.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}
