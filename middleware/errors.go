package middleware

import "errors"

var (
	// ErrPanic indicates a handler panicked
	ErrPanic = errors.New("handler panicked")

	// ErrTimeout indicates a handler ran past its deadline
	ErrTimeout = errors.New("handler timed out")

	// ErrLimitExceeded indicates no invocation slot became free in time
	ErrLimitExceeded = errors.New("handler concurrency limit exceeded")
)
