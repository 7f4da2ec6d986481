// Package errors defines the relay's error taxonomy and how each kind maps
// onto an HTTP status.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeCaller is a bad inbound request detected locally (missing header,
	// missing required field). No upstream call is made.
	ErrTypeCaller ErrorType = "caller"
	// ErrTypeCredentialUnavailable means no upstream credential could be
	// obtained for a cached-credential call.
	ErrTypeCredentialUnavailable ErrorType = "credential_unavailable"
	// ErrTypeGateway means the upstream call itself could not complete.
	ErrTypeGateway ErrorType = "gateway"
	// ErrTypeUpstream is a non-success response from a partner API.
	ErrTypeUpstream ErrorType = "upstream"
	ErrTypeConfig   ErrorType = "config"
	ErrTypeNotFound ErrorType = "not_found"
	ErrTypeInternal ErrorType = "internal"
	ErrTypeTimeout  ErrorType = "timeout"
	// ErrTypeRateLimit is returned when the per-client limiter rejects a request
	ErrTypeRateLimit ErrorType = "rate_limit"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Status  int                    `json:"-"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
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

// CallerError creates an error for a request rejected before any network call
func CallerError(msg string) *AppError {
	return &AppError{Type: ErrTypeCaller, Message: msg}
}

// CredentialUnavailableError wraps the acquisition failure behind a cached call
func CredentialUnavailableError(cause error) *AppError {
	return &AppError{
		Type:    ErrTypeCredentialUnavailable,
		Message: "upstream credential unavailable",
		Cause:   cause,
	}
}

// GatewayError wraps a network-level failure reaching a partner API
func GatewayError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeGateway, Message: msg, Cause: cause}
}

// UpstreamError records a non-success partner response together with its
// status and raw body text.
func UpstreamError(msg string, status int, body string) *AppError {
	err := &AppError{Type: ErrTypeUpstream, Message: msg, Status: status}
	if body != "" {
		err.WithContext("body", body)
	}
	return err
}

func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

func NotFoundError(resource string) *AppError {
	return &AppError{Type: ErrTypeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

func TimeoutError(operation string) *AppError {
	return &AppError{Type: ErrTypeTimeout, Message: fmt.Sprintf("timeout during %s", operation)}
}

func RateLimitError(resource string) *AppError {
	return &AppError{Type: ErrTypeRateLimit, Message: fmt.Sprintf("rate limit exceeded for %s", resource)}
}

// As returns the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if any error in err's chain is an AppError of errType
func IsType(err error, errType ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return ErrTypeInternal
}

// HTTPStatus maps an error onto the status the relay answers with
func HTTPStatus(err error) int {
	switch GetType(err) {
	case "":
		return http.StatusOK
	case ErrTypeCaller:
		return http.StatusBadRequest
	case ErrTypeCredentialUnavailable:
		return http.StatusServiceUnavailable
	case ErrTypeGateway:
		return http.StatusBadGateway
	case ErrTypeUpstream:
		if appErr, _ := As(err); appErr.Status != 0 {
			return appErr.Status
		}
		return http.StatusBadGateway
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
