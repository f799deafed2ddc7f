package errors

import (
	"net/http"

	"athlo/internal/errors"
)

// AppError defines the interface for application-specific errors
type AppError interface {
	error
	HTTPCode() int     // HTTP status code
	ErrorCode() string // Stable business error code
	Message() string   // User-facing message
	Details() string   // Optional extra context
}

// BaseError is a basic error structure that implements the AppError interface
type BaseError struct {
	httpCode  int
	errorCode string
	message   string
	details   string
}

// NewBaseError creates a new base error
func NewBaseError(httpCode int, errorCode, message, details string) *BaseError {
	return &BaseError{
		httpCode:  httpCode,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.details != "" {
		return e.message + ": " + e.details
	}

	return e.message
}

// WrapMessage wraps the error with additional context message
func (e *BaseError) WrapMessage(message string) error {
	return errors.Wrap(e, message)
}

// HTTPCode returns the HTTP status code
func (e *BaseError) HTTPCode() int {
	return e.httpCode
}

// ErrorCode returns the business error code
func (e *BaseError) ErrorCode() string {
	return e.errorCode
}

// Message returns the user-facing message
func (e *BaseError) Message() string {
	return e.message
}

// Details returns detailed error information
func (e *BaseError) Details() string {
	return e.details
}

// WithDetails returns a copy carrying details. The copy still matches the
// original sentinel under errors.Is.
func (e *BaseError) WithDetails(details string) *BaseError {
	return &BaseError{
		httpCode:  e.httpCode,
		errorCode: e.errorCode,
		message:   e.message,
		details:   details,
	}
}

// Is matches any BaseError carrying the same error code.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}

	return t.errorCode == e.errorCode
}

// Authentication taxonomy. Every orchestrator failure is one of these.
var (
	ErrDuplicateEmail = NewBaseError(
		http.StatusConflict,
		"DUPLICATE_EMAIL",
		"Email already registered",
		"",
	)

	ErrWeakPassword = NewBaseError(
		http.StatusBadRequest,
		"WEAK_PASSWORD",
		"Password does not meet the minimum length",
		"",
	)

	ErrInvalidCredentials = NewBaseError(
		http.StatusUnauthorized,
		"INVALID_CREDENTIALS",
		"Invalid email or password",
		"",
	)

	ErrAccountDeactivated = NewBaseError(
		http.StatusForbidden,
		"ACCOUNT_DEACTIVATED",
		"Account is deactivated",
		"",
	)

	ErrInvalidRefreshToken = NewBaseError(
		http.StatusUnauthorized,
		"INVALID_REFRESH_TOKEN",
		"Invalid refresh token",
		"",
	)

	ErrRevokedRefreshToken = NewBaseError(
		http.StatusUnauthorized,
		"REVOKED_REFRESH_TOKEN",
		"Refresh token has been revoked",
		"",
	)

	ErrExpiredRefreshToken = NewBaseError(
		http.StatusUnauthorized,
		"EXPIRED_REFRESH_TOKEN",
		"Refresh token has expired",
		"",
	)

	ErrInvalidToken = NewBaseError(
		http.StatusUnauthorized,
		"INVALID_TOKEN",
		"Invalid identity token",
		"",
	)

	ErrNotFound = NewBaseError(
		http.StatusNotFound,
		"NOT_FOUND",
		"User not found",
		"",
	)
)

// Boundary and infrastructure errors.
var (
	ErrValidationFailed = NewBaseError(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Request validation failed",
		"",
	)

	ErrInvalidAccessToken = NewBaseError(
		http.StatusUnauthorized,
		"INVALID_ACCESS_TOKEN",
		"Could not validate credentials",
		"",
	)

	ErrIdentityProviderUnavailable = NewBaseError(
		http.StatusBadGateway,
		"IDENTITY_PROVIDER_UNAVAILABLE",
		"Identity provider could not be reached",
		"",
	)

	ErrInternalError = NewBaseError(
		http.StatusInternalServerError,
		"INTERNAL_ERROR",
		"Internal server error",
		"",
	)
)

// CodeOf returns the business code carried by err, or INTERNAL_ERROR when err
// is not an AppError.
func CodeOf(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.ErrorCode()
	}

	return ErrInternalError.ErrorCode()
}

// CodeStorageFailed is the code carried by every StorageError.
const CodeStorageFailed = "STORAGE_FAILED"

// StorageError represents a failure in the persistence layer, implementing the AppError interface
type StorageError struct {
	err     error
	details string
}

// NewStorageError creates a storage-related error
func NewStorageError(err error, details string) AppError {
	return &StorageError{
		err:     err,
		details: details,
	}
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return errors.Wrap(e.err, e.details).Error()
}

// Unwrap exposes the underlying driver error.
func (e *StorageError) Unwrap() error {
	return e.err
}

// HTTPCode returns the HTTP status code
func (e *StorageError) HTTPCode() int {
	return http.StatusInternalServerError
}

// ErrorCode returns the business error code
func (e *StorageError) ErrorCode() string {
	return CodeStorageFailed
}

// Message returns the user-facing message
func (e *StorageError) Message() string {
	return "Storage operation failed"
}

// Details returns detailed error information
func (e *StorageError) Details() string {
	return e.details
}
