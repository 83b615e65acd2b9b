package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestParseHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		wantType  ErrorType
		retryable bool
	}{
		{http.StatusTooManyRequests, "", ErrorTypeRateLimit, true},
		{http.StatusUnauthorized, "", ErrorTypeAuthentication, false},
		{http.StatusServiceUnavailable, "", ErrorTypeServerError, true},
		{http.StatusBadRequest, "maximum context length is 8192 tokens", ErrorTypeContextLength, false},
		{http.StatusTeapot, "", ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		err := ParseHTTPError(ProviderOpenAI, tt.status, tt.body)
		if err.Type != tt.wantType {
			t.Errorf("status %d: expected type %s, got %s", tt.status, tt.wantType, err.Type)
		}
		if err.IsRetryable() != tt.retryable {
			t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
		}
		if err.HTTPStatus != tt.status {
			t.Errorf("status %d: HTTPStatus not recorded", tt.status)
		}
	}
}

func TestConvertTransportError(t *testing.T) {
	if e := ConvertTransportError(ProviderAnthropic, context.DeadlineExceeded); e.Type != ErrorTypeTimeout {
		t.Errorf("Expected timeout, got %s", e.Type)
	}
	if e := ConvertTransportError(ProviderAnthropic, errors.New("dial tcp: connection refused")); e.Type != ErrorTypeConnectionError {
		t.Errorf("Expected connection error, got %s", e.Type)
	}
}

func TestIsLLMError_Wrapped(t *testing.T) {
	base := NewLLMError(ProviderOpenAI, ErrorTypeTimeout, "slow")
	wrapped := fmt.Errorf("agent tax: %w", base)

	got, ok := IsLLMError(wrapped)
	if !ok || got != base {
		t.Fatalf("Expected to unwrap LLMError, got %v %v", got, ok)
	}
	if !IsTimeout(wrapped) {
		t.Error("Expected IsTimeout on wrapped timeout")
	}
	if IsRetryableError(wrapped) {
		t.Error("timeouts are not retried by the transport")
	}
}
