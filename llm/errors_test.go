package llm

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		wantType  string
		retryable bool
	}{
		{400, "*llm.BadRequestError", false},
		{401, "*llm.AuthError", false},
		{403, "*llm.AuthError", false},
		{404, "*llm.BadRequestError", false},
		{408, "*llm.RequestTimeoutError", true},
		{409, "*llm.ServerError", true},
		{422, "*llm.BadRequestError", false},
		{429, "*llm.RateLimitError", true},
		{500, "*llm.ServerError", true},
		{503, "*llm.ServerError", true},
		{529, "*llm.ServerError", true},
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "boom", "anthropic", "", nil)
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: IsRetryable = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"auth", &AuthError{}, false},
		{"bad request", &BadRequestError{}, false},
		{"bad request with retry hint", &BadRequestError{BackendError{Retryable: true}}, true},
		{"rate limit", &RateLimitError{}, true},
		{"server", &ServerError{}, true},
		{"timeout", &RequestTimeoutError{}, true},
		{"network", &NetworkError{}, true},
		{"abort", &AbortError{}, false},
		{"configuration", &ConfigurationError{}, false},
		{"plain error", errors.New("whatever"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%T) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestIsAborted(t *testing.T) {
	if !IsAborted(&AbortError{}) {
		t.Error("AbortError should report aborted")
	}
	if IsAborted(&AuthError{}) {
		t.Error("AuthError should not report aborted")
	}
	if IsAborted(nil) {
		t.Error("nil should not report aborted")
	}
}

func TestGatewayErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &NetworkError{GatewayError{Message: "request failed", Cause: cause}}
	if !errors.Is(err, cause) {
		t.Error("expected NetworkError to unwrap to its cause")
	}
	if got := err.Error(); got != "request failed: connection reset" {
		t.Errorf("Error() = %q", got)
	}
}

func TestRetryAfterHint(t *testing.T) {
	after := 3.5
	err := ErrorFromStatusCode(429, "slow down", "openai", "", &after)
	hint := retryAfterHint(err)
	if hint == nil || *hint != 3.5 {
		t.Errorf("retryAfterHint = %v, want 3.5", hint)
	}
	if retryAfterHint(&NetworkError{}) != nil {
		t.Error("NetworkError should carry no hint")
	}
}
