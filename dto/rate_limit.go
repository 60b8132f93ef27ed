package dto

// RateLimitDecision is the limiter verdict for one request.
type RateLimitDecision struct {
	Allowed           bool `json:"allowed"`
	RetryAfterSeconds int  `json:"retry_after_seconds,omitempty"`
}
