package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
)

// Retry is a retry policy for generation calls. Backoff[i] is the wait
// before attempt i+2; the last entry repeats when attempts outnumber it.
type Retry struct {
	MaxAttempts int
	Backoff     []time.Duration
	Timeout     time.Duration // per attempt, zero means none
	Logger      *slog.Logger
}

// DefaultRetry waits 5s then 15s between three attempts.
func DefaultRetry() Retry {
	return Retry{
		MaxAttempts: 3,
		Backoff:     []time.Duration{5 * time.Second, 15 * time.Second},
		Timeout:     60 * time.Second,
	}
}

func (r Retry) wait(attempt int) time.Duration {
	if len(r.Backoff) == 0 || attempt < 1 {
		return 0
	}
	if attempt > len(r.Backoff) {
		return r.Backoff[len(r.Backoff)-1]
	}
	return r.Backoff[attempt-1]
}

// Do calls fn until it succeeds, the attempts run out, or ctx is done.
// Each attempt gets its own timeout derived from ctx.
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.WithComponent("llm")
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if d := r.wait(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		lastErr = r.attempt(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Join(ctx.Err(), lastErr)
		}
		logger.Warn("generation attempt failed",
			"attempt", attempt+1,
			"max_attempts", attempts,
			"error", lastErr,
		)
	}
	return fmt.Errorf("%w after %d attempts: %w", errorskg.ErrRetriesExhausted, attempts, lastErr)
}

func (r Retry) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

// Generate runs g.Generate under the policy.
func (r Retry) Generate(ctx context.Context, g Generator, req Request) (string, error) {
	var out string
	err := r.Do(ctx, func(ctx context.Context) error {
		text, err := g.Generate(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
