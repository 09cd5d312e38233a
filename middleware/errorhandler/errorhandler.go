package errorhandler

import (
	"fmt"
	"runtime/debug"

	"github.com/sehgal-vip/travel-agent/middleware"
)

// ErrorHandlerFunc inspects a failed invocation and returns the error the
// dispatcher sees. A nil result keeps the original error.
type ErrorHandlerFunc func(ctx *middleware.Context, err error) error

// ErrorHandler passes handler failures through fn.
type ErrorHandler struct {
	fn ErrorHandlerFunc
}

func NewErrorHandler(fn ErrorHandlerFunc) *ErrorHandler {
	return &ErrorHandler{fn: fn}
}

func (m *ErrorHandler) Name() string { return "ErrorHandler" }

func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err == nil || m.fn == nil {
		return err
	}
	if mapped := m.fn(ctx, err); mapped != nil {
		return mapped
	}
	return err
}

// Recoverer turns a panic in a downstream handler into an error wrapping
// middleware.ErrPanic. The partial result is discarded.
type Recoverer struct{}

func NewRecoverer() *Recoverer { return &Recoverer{} }

func (m *Recoverer) Name() string { return "Recoverer" }

func (m *Recoverer) Execute(ctx *middleware.Context, next middleware.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ctx.Metadata == nil {
				ctx.Metadata = make(map[string]any)
			}
			ctx.Metadata["panic_stack"] = string(debug.Stack())
			err = fmt.Errorf("%w: %s: %v", middleware.ErrPanic, ctx.Handler, r)
		}
	}()
	return next(ctx)
}
