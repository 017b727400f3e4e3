// Package handlers wires HTTP endpoints to the admission pipeline and the
// background workflow orchestrator. This file centralizes the client-facing
// error messages so response bodies stay stable across handlers and tests.
package handlers

const (
	// ErrMsgInvalidBody is returned when the request body cannot be parsed or
	// fails the basic shape check.
	ErrMsgInvalidBody = "Invalid request body"
	// ErrMsgValidationFailed is returned when input validation rejects the
	// topic; the individual reasons travel in the details field.
	ErrMsgValidationFailed = "Validation failed"
	// ErrMsgRateLimited is returned when a quota check denies admission; the
	// machine-readable reason travels in the reason field.
	ErrMsgRateLimited = "Rate limit exceeded"
	// ErrMsgInternal is the generic message for unexpected failures. Internal
	// details never leak to clients; the trace id is included for correlation.
	ErrMsgInternal = "Internal server error"
)
