// Package handler defines the contract between the dispatcher and the
// specialist handlers, and the registry that names them.
package handler

import (
	"context"

	"github.com/sehgal-vip/travel-agent/state"
)

// Handler names.
const (
	Onboarding  = "onboarding"
	Research    = "research"
	Librarian   = "librarian"
	Prioritizer = "prioritizer"
	Planner     = "planner"
	Scheduler   = "scheduler"
	Feedback    = "feedback"
	Cost        = "cost"
	// Orchestrator is the classifier's name for general chat. It is never
	// registered as a handler.
	Orchestrator = "orchestrator"
)

// Result is what a handler produces for one turn.
type Result struct {
	Response string
	Patch    state.Patch
	Signal   state.Signal // nil means terminal
}

// Handler runs one specialist. The state it receives is a private copy;
// changes must be returned as a Patch.
type Handler interface {
	Handle(ctx context.Context, st *state.State, msg string) (Result, error)
}

// Func adapts a function to Handler.
type Func func(ctx context.Context, st *state.State, msg string) (Result, error)

func (f Func) Handle(ctx context.Context, st *state.State, msg string) (Result, error) {
	return f(ctx, st, msg)
}
