package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeInvalidCredentials represents a permanent upstream rejection of
	// the tenant's credentials; retrying with the same credentials is useless
	ErrTypeInvalidCredentials ErrorType = "invalid_credentials"
	// ErrTypeServiceUnavailable represents a transient upstream failure
	ErrTypeServiceUnavailable ErrorType = "service_unavailable"
	// ErrTypeTimeout represents a bounded-wait expiry; treated like
	// service_unavailable for retry purposes
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeRateLimited represents a locally enforced call-budget rejection
	ErrTypeRateLimited ErrorType = "rate_limited"
	// ErrTypeStore represents a token store persistence failure
	ErrTypeStore ErrorType = "store"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// InvalidCredentialsError creates a new invalid credentials error
func InvalidCredentialsError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeInvalidCredentials,
		Message: msg,
	}
}

// ServiceUnavailableError creates a new transient upstream failure error
func ServiceUnavailableError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeServiceUnavailable,
		Message: msg,
		Cause:   cause,
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
	}
}

// RateLimitedError creates a new rate limit error
func RateLimitedError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimited,
		Message: fmt.Sprintf("rate limit exceeded for %s", resource),
	}
}

// StoreError creates a new token store error
func StoreError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeStore,
		Message: msg,
		Cause:   cause,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// GetAppError returns the AppError in err's chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// GetType returns the error type if an AppError is in the chain, otherwise
// returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr := GetAppError(err)
	if appErr == nil {
		return ErrTypeInternal
	}

	return appErr.Type
}

// IsRetryable reports whether the error represents a transient condition
// that a caller may retry after backing off. Invalid credentials and
// validation failures are permanent.
func IsRetryable(err error) bool {
	switch GetType(err) {
	case ErrTypeServiceUnavailable, ErrTypeTimeout:
		return true
	default:
		return false
	}
}
