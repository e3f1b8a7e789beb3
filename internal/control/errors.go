package control

import (
	"errors"
	"fmt"
	"time"
)

// Caller-facing error taxonomy. Worker-side failures never surface here; they
// are recorded as data on the message record.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// ThrottledError tells the caller when to retry.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled: retry after %s", e.RetryAfter)
}

// InvalidPayloadError rejects a malformed submission; non-retryable.
type InvalidPayloadError struct {
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return "invalid payload: " + e.Reason
}
