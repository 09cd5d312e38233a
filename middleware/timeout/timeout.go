package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sehgal-vip/travel-agent/middleware"
)

// Timeout bounds a handler invocation with a deadline
type Timeout struct {
	d time.Duration
}

// New creates a timeout middleware. Non-positive d disables it.
func New(d time.Duration) *Timeout {
	return &Timeout{d: d}
}

// Name returns the middleware name
func (m *Timeout) Name() string {
	return "Timeout"
}

// Execute runs next under a derived deadline
func (m *Timeout) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.d <= 0 {
		return next(ctx)
	}
	parent := ctx.Context()
	tctx, cancel := context.WithTimeout(parent, m.d)
	defer cancel()

	ctx.WithContext(tctx)
	defer ctx.WithContext(parent)

	err := next(ctx)
	if err == nil && tctx.Err() != nil && parent.Err() == nil {
		err = tctx.Err()
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: %s after %s", middleware.ErrTimeout, ctx.Handler, m.d)
	}
	return err
}
