// Package errors holds the sentinel errors of the travel agent.
package errors

import "errors"

// Sentinel errors shared by every package. Wrap them with fmt.Errorf and
// test with errors.Is.
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownHandler indicates a handler name outside the registered allow-list
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrNotEligible indicates the handler has no memory document
	ErrNotEligible = errors.New("handler not memory-eligible")

	// ErrRetriesExhausted indicates an external call failed on every attempt
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrUnparsed indicates handler output could not be decoded into structured data
	ErrUnparsed = errors.New("output could not be parsed")
)
