// Package runner executes conversation turns: one at a time per
// conversation, bounded across conversations.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sehgal-vip/travel-agent/dispatcher"
	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/state"
)

// DefaultConcurrency bounds simultaneous turns when none is configured.
const DefaultConcurrency = 10

// Turner processes one message against a state.
type Turner interface {
	Turn(ctx context.Context, st *state.State, msg string) (*dispatcher.Outcome, error)
}

// Sessions loads and saves conversation state.
type Sessions interface {
	Open(ctx context.Context, id, inbound string) (*state.State, error)
	Commit(ctx context.Context, st *state.State) error
	Retire(ctx context.Context, id string) error
}

// Retirer drops per-conversation data kept outside the session store.
type Retirer interface {
	Retire(ctx context.Context, conversationID string) error
}

// convLock is a context-aware mutex shared by the turns of one
// conversation. refs counts holders and waiters.
type convLock struct {
	ch   chan struct{}
	refs int
}

// Runner serializes turns per conversation and bounds the total number of
// turns in flight.
type Runner struct {
	turner    Turner
	sessions  Sessions
	retirers  []Retirer
	semaphore chan struct{}
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*convLock
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRetirer adds a store cleared when a conversation is retired.
func WithRetirer(rt Retirer) Option {
	return func(r *Runner) {
		if rt != nil {
			r.retirers = append(r.retirers, rt)
		}
	}
}

// New creates a runner. maxConcurrency <= 0 means DefaultConcurrency.
func New(turner Turner, sessions Sessions, maxConcurrency int, opts ...Option) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}
	r := &Runner{
		turner:    turner,
		sessions:  sessions,
		semaphore: make(chan struct{}, maxConcurrency),
		logger:    logging.WithComponent("runner"),
		locks:     make(map[string]*convLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) acquire(ctx context.Context, id string) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &convLock{ch: make(chan struct{}, 1)}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
	}

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}

// lockCount is used by tests to observe registry pruning.
func (r *Runner) lockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Run processes text for the conversation and persists the result.
func (r *Runner) Run(ctx context.Context, conversationID, text string) (*dispatcher.Outcome, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required: %w", errorskg.ErrInvalidInput)
	}
	unlock, err := r.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	st, err := r.sessions.Open(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}
	out, err := r.turner.Turn(ctx, st, text)
	if err != nil {
		return nil, err
	}
	if err := r.sessions.Commit(ctx, out.State); err != nil {
		return nil, err
	}
	r.logger.Debug("turn committed",
		"conversation_id", conversationID,
		"handler", out.Handler,
		"path", out.Path,
	)
	return out, nil
}

// Retire removes the conversation everywhere. It waits for an in-flight
// turn of the same conversation to finish.
func (r *Runner) Retire(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required: %w", errorskg.ErrInvalidInput)
	}
	unlock, err := r.acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	var errs []error
	if err := r.sessions.Retire(ctx, conversationID); err != nil && !errors.Is(err, errorskg.ErrNotFound) {
		errs = append(errs, err)
	}
	for _, rt := range r.retirers {
		if err := rt.Retire(ctx, conversationID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Task is one inbound message.
type Task struct {
	ConversationID string
	Text           string
}

// Result pairs a task with its outcome.
type Result struct {
	Task    Task
	Outcome *dispatcher.Outcome
	Error   error
}

// RunParallel runs tasks concurrently. Tasks of the same conversation still
// run one at a time, in no guaranteed order.
func (r *Runner) RunParallel(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					results[index] = Result{Task: t, Error: fmt.Errorf("panic in turn for %s: %v", t.ConversationID, p)}
				}
			}()

			out, err := r.Run(ctx, t.ConversationID, t.Text)
			results[index] = Result{Task: t, Outcome: out, Error: err}
		}(i, task)
	}

	wg.Wait()
	return results
}
