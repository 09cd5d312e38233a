package handler

import (
	"fmt"
	"sync"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
)

type entry struct {
	handler  Handler
	fallback string
}

// Registry maps handler names to implementations. It is built once at
// startup and shared by reference.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// Option customises a registration.
type Option func(*entry)

// WithFallback overrides the apology text used when the handler fails.
func WithFallback(text string) Option {
	return func(e *entry) {
		e.fallback = text
	}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a handler. Names must be unique and non-empty.
func (r *Registry) Register(name string, h Handler, opts ...Option) error {
	if name == "" || h == nil {
		return fmt.Errorf("register handler %q: %w", name, errorskg.ErrInvalidInput)
	}
	if name == Orchestrator {
		return fmt.Errorf("register handler %q: name is reserved: %w", name, errorskg.ErrInvalidInput)
	}
	e := entry{handler: h, fallback: FallbackText(name)}
	for _, opt := range opts {
		opt(&e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register handler %q: %w", name, errorskg.ErrAlreadyExists)
	}
	r.entries[name] = e
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, h Handler, opts ...Option) *Registry {
	if err := r.Register(name, h, opts...); err != nil {
		panic(err)
	}
	return r
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("handler %q: %w", name, errorskg.ErrUnknownHandler)
	}
	return e.handler, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Fallback returns the apology text for name.
func (r *Registry) Fallback(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.fallback
	}
	return DefaultFallback
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
