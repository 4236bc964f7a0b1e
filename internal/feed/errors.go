package feed

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTokenUnavailable marks the explicit no-credential condition: the hub
// answered the token request but declined to issue one. Distinct from a
// transport failure while fetching.
var ErrTokenUnavailable = errors.New("channel token unavailable")

// AvailabilityError reports a failed or unsupported capability probe.
type AvailabilityError struct {
	StatusCode int
	Err        error
}

func (e *AvailabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("availability probe failed: %v", e.Err)
	}
	return fmt.Sprintf("availability probe failed: status %d", e.StatusCode)
}

func (e *AvailabilityError) Unwrap() error {
	return e.Err
}

// errorClass partitions failures for the retry policy.
type errorClass int

const (
	classTransient errorClass = iota // retry within budget
	classAuth                        // permanent disable, never retry
	classFatal                       // settle in error, no retry
)

var transientPatterns = []string{
	"network",
	"connection",
	"timeout",
	"timed out",
	"stream",
	"broken pipe",
	"reset by peer",
	"eof",
	"temporarily unavailable",
	"websocket",
	"closed",
}

// classifyError maps an error onto the retry taxonomy by message text.
// Auth markers win over transient markers: a "401" inside a network error
// message still means the credential is bad.
func classifyError(err error) errorClass {
	if err == nil {
		return classFatal
	}
	text := strings.ToLower(err.Error())
	if strings.Contains(text, "401") || strings.Contains(text, "403") ||
		strings.Contains(text, "unauthorized") || strings.Contains(text, "forbidden") {
		return classAuth
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(text, pattern) {
			return classTransient
		}
	}
	return classFatal
}
