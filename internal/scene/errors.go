package scene

import "errors"

var (
	// ErrMalformedChannel is returned when a channel violates the input
	// preconditions (missing author or message ids).
	ErrMalformedChannel = errors.New("malformed channel")

	// ErrTraceProvider wraps a failure of the trace collaborator.
	ErrTraceProvider = errors.New("trace provider failed")

	// ErrInvalidInterval is returned when a trace contains a scene ending
	// before it starts.
	ErrInvalidInterval = errors.New("invalid scene interval")
)
