package llm

import "context"

// Backend is implemented once per provider wire family. A backend owns the
// translation between the neutral Request/Response types and its wire
// format, and the classification of its own transport errors.
type Backend interface {
	// Name returns the backend identifier (e.g. "anthropic", "openai").
	Name() string

	// Complete sends one blocking query and returns the normalized
	// assistant response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// QuirkDetector is optionally implemented by backends that can recognize
// their own wire quirks (unsupported fields, limit violations) from an
// error payload and propose a request correction. The gateway applies the
// correction, retries, and memoizes it per (backend, model) so the same
// failed attempt is not repeated for the remainder of the process.
type QuirkDetector interface {
	DetectQuirk(req Request, err error) (Correction, bool)
}

// Correction is a request rewrite that works around a backend wire quirk.
type Correction struct {
	Code      string // "clamp_max_tokens" or "drop_temperature"
	MaxTokens int    // target value for clamp corrections
}

// Apply returns a copy of req with the correction applied.
func (c Correction) Apply(req Request) Request {
	switch c.Code {
	case "clamp_max_tokens":
		if c.MaxTokens > 0 && (req.MaxTokens == 0 || req.MaxTokens > c.MaxTokens) {
			req.MaxTokens = c.MaxTokens
		}
	case "drop_temperature":
		req.Temperature = nil
	}
	return req
}
