package llm

import "fmt"

// GatewayError is the base error type for all gateway failures.
type GatewayError struct {
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// BackendError represents an error reported by an LLM backend.
type BackendError struct {
	GatewayError
	Backend    string
	StatusCode int
	Retryable  bool
	RetryAfter *float64 // seconds, from the backend's retry-after hint
	Payload    string   // raw error body text, used for quirk detection
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Backend, e.Message, e.StatusCode, e.Retryable)
}

// Concrete backend error types.

type AuthError struct{ BackendError }
type BadRequestError struct{ BackendError }
type RateLimitError struct{ BackendError }
type ServerError struct{ BackendError }
type RequestTimeoutError struct{ BackendError }

// Non-backend errors.

type NetworkError struct{ GatewayError }
type AbortError struct{ GatewayError }
type ConfigurationError struct{ GatewayError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error
// type. Per the retry policy, 408/409/429 and all 5xx are retryable;
// authentication failures and every other client error are fatal.
func ErrorFromStatusCode(statusCode int, message, backend, payload string, retryAfter *float64) error {
	be := BackendError{
		GatewayError: GatewayError{Message: message},
		Backend:      backend,
		StatusCode:   statusCode,
		RetryAfter:   retryAfter,
		Payload:      payload,
	}

	switch {
	case statusCode == 401 || statusCode == 403:
		return &AuthError{BackendError: be}
	case statusCode == 408:
		be.Retryable = true
		return &RequestTimeoutError{BackendError: be}
	case statusCode == 409:
		be.Retryable = true
		return &ServerError{BackendError: be}
	case statusCode == 429:
		be.Retryable = true
		return &RateLimitError{BackendError: be}
	case statusCode >= 500:
		be.Retryable = true
		return &ServerError{BackendError: be}
	default:
		return &BadRequestError{BackendError: be}
	}
}

// IsRetryable reports whether the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *AuthError:
		return false
	case *BadRequestError:
		// Honor an explicit backend "should retry" hint even on a
		// nominally fatal classification.
		return e.Retryable
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *RequestTimeoutError:
		return true
	case *NetworkError:
		return true
	case *BackendError:
		return e.Retryable
	case *AbortError:
		return false
	case *ConfigurationError:
		return false
	default:
		return false
	}
}

// IsAborted reports whether the error represents cancellation rather than
// failure. Callers must distinguish the two when surfacing terminal events.
func IsAborted(err error) bool {
	_, ok := err.(*AbortError)
	return ok
}

// retryAfterHint extracts the backend-supplied retry delay, if any.
func retryAfterHint(err error) *float64 {
	switch e := err.(type) {
	case *RateLimitError:
		return e.RetryAfter
	case *ServerError:
		return e.RetryAfter
	case *RequestTimeoutError:
		return e.RetryAfter
	case *BackendError:
		return e.RetryAfter
	}
	return nil
}
