package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured application error carrying a stable
// machine-readable code and the HTTP status it maps to.
type AppError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	HTTPCode int    `json:"-"`
	Cause    error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

const (
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeKeyFormat     = "KEY_FORMAT_ERROR"
	CodeStoreError    = "STORE_ERROR"
	CodeRateLimited   = "RATE_LIMITED"

	// OAuth 2.0 / OpenID Connect error codes (RFC 6749, OIDC Core)
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeInvalidScope         = "invalid_scope"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeLoginRequired        = "login_required"
	CodeInvalidToken         = "invalid_token"
	CodeServerError          = "server_error"
)

func InternalError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInternalError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func ConfigError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeConfigError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// KeyFormatError marks malformed or incomplete signing-key material.
// Fatal at startup, never user-recoverable.
func KeyFormatError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeKeyFormat,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// StoreUnavailableError marks a transient credential-store failure. It is
// surfaced to callers as a generic server error and is safe to retry.
func StoreUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeStoreError,
		Message:  message,
		HTTPCode: http.StatusServiceUnavailable,
		Cause:    cause,
	}
}

func RateLimitedError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeRateLimited,
		Message:  message,
		HTTPCode: http.StatusTooManyRequests,
		Cause:    cause,
	}
}

func InvalidRequestError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidRequest,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func InvalidClientError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidClient,
		Message:  message,
		HTTPCode: http.StatusUnauthorized,
		Cause:    cause,
	}
}

func InvalidGrantError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidGrant,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func InvalidScopeError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidScope,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func UnsupportedGrantTypeError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeUnsupportedGrantType,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func LoginRequiredError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeLoginRequired,
		Message:  message,
		HTTPCode: http.StatusUnauthorized,
		Cause:    cause,
	}
}

func InvalidTokenError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidToken,
		Message:  message,
		HTTPCode: http.StatusUnauthorized,
		Cause:    cause,
	}
}

func ServerError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeServerError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// IsType reports whether err carries the given application error code.
func IsType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetHTTPCode extracts the HTTP status from an error, defaulting to 500.
func GetHTTPCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}
