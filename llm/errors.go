package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of LLM error
type ErrorType string

const (
	ErrorTypeUnknown           ErrorType = "unknown"
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
	ErrorTypeAuthentication    ErrorType = "authentication_error"
	ErrorTypePermission        ErrorType = "permission_error"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeRateLimit         ErrorType = "rate_limit_exceeded"
	ErrorTypeInsufficientQuota ErrorType = "insufficient_quota"
	ErrorTypeContextLength     ErrorType = "context_length_exceeded"
	ErrorTypeContentFilter     ErrorType = "content_filter"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeConnectionError   ErrorType = "connection_error"
	ErrorTypeEmptyResponse     ErrorType = "empty_response"
	ErrorTypeJSONParsingError  ErrorType = "json_parsing_error"
)

// LLMError represents an error from an LLM provider
type LLMError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Provider   Provider  `json:"provider"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	RetryAfter int       `json:"retry_after,omitempty"` // Seconds to wait before retry
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *LLMError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *LLMError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error is retryable
func (e *LLMError) IsRetryable() bool {
	return e.Retryable
}

// NewLLMError creates a new LLM error
func NewLLMError(provider Provider, errorType ErrorType, message string) *LLMError {
	return &LLMError{
		Type:      errorType,
		Message:   message,
		Provider:  provider,
		Retryable: isRetryableError(errorType),
	}
}

// NewLLMErrorWithCause creates a new LLM error with an underlying cause
func NewLLMErrorWithCause(provider Provider, errorType ErrorType, message string, cause error) *LLMError {
	err := NewLLMError(provider, errorType, message)
	err.Cause = cause
	return err
}

func isRetryableError(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeConnectionError:
		return true
	default:
		return false
	}
}

// ParseHTTPError maps a provider HTTP status into an LLMError.
func ParseHTTPError(provider Provider, statusCode int, body string) *LLMError {
	var errorType ErrorType
	var message string

	switch statusCode {
	case http.StatusBadRequest:
		errorType, message = ErrorTypeInvalidRequest, "invalid request parameters"
	case http.StatusUnauthorized:
		errorType, message = ErrorTypeAuthentication, "invalid API key or authentication failed"
	case http.StatusForbidden:
		errorType, message = ErrorTypePermission, "permission denied"
	case http.StatusNotFound:
		errorType, message = ErrorTypeNotFound, "resource not found"
	case http.StatusTooManyRequests:
		errorType, message = ErrorTypeRateLimit, "rate limit exceeded"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		errorType, message = ErrorTypeServerError, "server error occurred"
	default:
		errorType, message = ErrorTypeUnknown, fmt.Sprintf("HTTP %d error", statusCode)
	}

	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "insufficient quota") || strings.Contains(lower, "quota exceeded"):
		errorType, message = ErrorTypeInsufficientQuota, "insufficient quota or credits"
	case strings.Contains(lower, "context length") || strings.Contains(lower, "token limit"):
		errorType, message = ErrorTypeContextLength, "context length exceeded"
	case strings.Contains(lower, "content filter"):
		errorType, message = ErrorTypeContentFilter, "content filtered by safety system"
	case body != "":
		message = fmt.Sprintf("%s: %s", message, truncateBody(body, 200))
	}

	err := NewLLMError(provider, errorType, message)
	err.HTTPStatus = statusCode
	return err
}

// ConvertTransportError normalizes context and network failures that happen
// before a provider produced an API error.
func ConvertTransportError(provider Provider, err error) *LLMError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewLLMErrorWithCause(provider, ErrorTypeTimeout, "request timeout", err)
	case errors.Is(err, context.Canceled):
		return NewLLMErrorWithCause(provider, ErrorTypeUnknown, "request canceled", err)
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") {
		return NewLLMErrorWithCause(provider, ErrorTypeConnectionError, "connection error", err)
	}
	return NewLLMErrorWithCause(provider, ErrorTypeUnknown, err.Error(), err)
}

func truncateBody(body string, maxLength int) string {
	if len(body) <= maxLength {
		return body
	}
	return body[:maxLength] + "..."
}

// IsLLMError reports whether err wraps an *LLMError and returns it.
func IsLLMError(err error) (*LLMError, bool) {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		// Derived from the type so hand-built errors behave the same.
		return isRetryableError(llmErr.Type)
	}
	return false
}

// IsTimeout reports whether err is a provider or context timeout.
func IsTimeout(err error) bool {
	if llmErr, ok := IsLLMError(err); ok && llmErr.Type == ErrorTypeTimeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
