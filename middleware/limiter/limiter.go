package limiter

import (
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sehgal-vip/travel-agent/middleware"
)

// ConcurrencyLimiter bounds the number of in-flight invocations per handler
// across all conversations. Handlers that call a model API share a provider
// quota, so a burst of conversations should queue instead of fanning out.
type ConcurrencyLimiter struct {
	max int64

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewConcurrencyLimiter creates a limiter allowing max concurrent invocations
// of each handler. Non-positive max disables limiting.
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		max:  int64(max),
		sems: make(map[string]*semaphore.Weighted),
	}
}

// Name returns the middleware name
func (m *ConcurrencyLimiter) Name() string {
	return "ConcurrencyLimiter"
}

func (m *ConcurrencyLimiter) semFor(name string) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.sems[name]
	if !ok {
		sem = semaphore.NewWeighted(m.max)
		m.sems[name] = sem
	}
	return sem
}

// Execute waits for a free slot, honouring the invocation context
func (m *ConcurrencyLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.max <= 0 {
		return next(ctx)
	}
	sem := m.semFor(ctx.Handler)
	if err := sem.Acquire(ctx.Context(), 1); err != nil {
		return fmt.Errorf("%w: %s: %w", middleware.ErrLimitExceeded, ctx.Handler, err)
	}
	defer sem.Release(1)
	return next(ctx)
}

// InFlight reports whether any slot for name is taken
func (m *ConcurrencyLimiter) InFlight(name string) bool {
	if m.max <= 0 {
		return false
	}
	sem := m.semFor(name)
	if sem.TryAcquire(m.max) {
		sem.Release(m.max)
		return false
	}
	return true
}
