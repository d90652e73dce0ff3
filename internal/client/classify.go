package client

import (
	"strings"
)

// ErrorKind is the coarse bucket a stream or save failure falls into.
type ErrorKind string

const (
	ErrorKindNetwork     ErrorKind = "network"
	ErrorKindRateLimited ErrorKind = "rate-limited"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindAuthExpired ErrorKind = "auth-expired"
	ErrorKindGeneric     ErrorKind = "generic"
)

// OpError is a classified, user-facing operation failure. Raw keeps the
// original text for logs.
type OpError struct {
	Kind    ErrorKind
	Message string
	Raw     string
}

func (e *OpError) Error() string {
	return e.Message
}

// classifyStreamError buckets a raw error string by substring inspection.
// This is a heuristic over whatever text the server or transport produced,
// not a contract; it lives in one place so it can be swapped for structured
// codes if the API grows them.
func classifyStreamError(raw string) *OpError {
	lower := strings.ToLower(raw)

	switch {
	case contains(lower, "429", "rate limit", "rate-limit", "too many requests"):
		return &OpError{
			Kind:    ErrorKindRateLimited,
			Message: "The AI service is busy. Wait a moment and try again.",
			Raw:     raw,
		}
	case contains(lower, "timeout", "timed out", "deadline exceeded"):
		return &OpError{
			Kind:    ErrorKindTimeout,
			Message: "The request took too long. Try again.",
			Raw:     raw,
		}
	case contains(lower, "401", "unauthorized", "jwt", "session expired", "token expired"):
		return &OpError{
			Kind:    ErrorKindAuthExpired,
			Message: "Your session has expired. Sign in again.",
			Raw:     raw,
		}
	case contains(lower, "network", "connection refused", "connection reset", "no such host", "broken pipe", "unexpected eof"):
		return &OpError{
			Kind:    ErrorKindNetwork,
			Message: "Could not reach the server. Check your connection and try again.",
			Raw:     raw,
		}
	default:
		return &OpError{
			Kind:    ErrorKindGeneric,
			Message: "Something went wrong. Try again.",
			Raw:     raw,
		}
	}
}

func contains(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
