package middleware

import (
	"context"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/state"
)

// Context represents one handler invocation as it moves through the chain
type Context struct {
	// Handler is the name of the handler being invoked
	Handler string

	// Input is the user message
	Input string

	// State is the handler's private copy of the conversation state
	State *state.State

	// Result is filled by the final handler
	Result handler.Result

	// Metadata for passing data between middlewares
	Metadata map[string]any

	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context, name string, st *state.State, input string) *Context {
	return &Context{
		Handler:  name,
		Input:    input,
		State:    st,
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// WithContext replaces the underlying context.Context for downstream middlewares
func (c *Context) WithContext(ctx context.Context) {
	c.context = ctx
}

// ConversationID returns the id of the conversation being served
func (c *Context) ConversationID() string {
	if c.State == nil {
		return ""
	}
	return c.State.ConversationID
}

// Middleware defines the interface for middleware components
// Middlewares can intercept and modify a handler invocation
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic
	// It receives the current context and a next handler to continue the chain
	// Returning error will stop the middleware chain
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// MiddlewareChain represents a sequence of middleware to be executed
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Add appends a middleware to the chain
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Names lists the middlewares in execution order
func (c *MiddlewareChain) Names() []string {
	names := make([]string, 0, len(c.middlewares))
	for _, m := range c.middlewares {
		names = append(names, m.Name())
	}
	return names
}

// Execute runs all middlewares in the chain
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

// executeMiddleware recursively executes middlewares in sequence
func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}

	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}

	return c.middlewares[index].Execute(ctx, nextHandler)
}

// Invoke returns a final Handler that runs h and stores its result.
func Invoke(h handler.Handler) Handler {
	return func(c *Context) error {
		res, err := h.Handle(c.Context(), c.State, c.Input)
		if err != nil {
			return err
		}
		c.Result = res
		return nil
	}
}
