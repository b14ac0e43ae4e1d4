package domain

import (
	"fmt"
)

// RequestError is returned when a call to the scorer fails at the
// network level or answers with a non-success status.
type RequestError struct {
	Op         string // e.g. "analyze", "live feed"
	StatusCode int    // 0 for network failures
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ValidationError rejects malformed input before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}
