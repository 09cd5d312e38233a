// Package router decides which handler answers a user turn.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/state"
)

// MaxLoopbackDepth is the number of non-terminal handler runs tolerated
// before routing is forced to stop.
const MaxLoopbackDepth = 5

const (
	// RestartText is the direct reply once the loopback ceiling is passed.
	RestartText = "We've gone back and forth a few times without finishing. Let's start fresh: tell me what you'd like to do next, or send /help."
	// ChatFallbackText is the general-chat reply when no chatter is available.
	ChatFallbackText = "I'm here to help plan your trip. Send /status to see where things stand or /help for commands."
)

// Directory reports which handler names are registered.
type Directory interface {
	Has(name string) bool
}

// Classification is the classifier's verdict for a free-text message.
type Classification struct {
	Target string
	// Echo is an optional preface shown before the handler's reply.
	Echo string
}

// Classifier maps free text to a handler name.
type Classifier interface {
	Classify(ctx context.Context, summary, msg string) (Classification, error)
}

// Chatter produces general-chat replies for messages no handler owns.
type Chatter interface {
	Chat(ctx context.Context, st *state.State, msg string) (string, error)
}

// Decision is the router's verdict. Exactly one of Target and Response is set.
type Decision struct {
	Target   string
	Response string
	Echo     string
	// Consumed names the control field this decision used up.
	Consumed state.Consumed
	// Stale lists control fields that named unregistered handlers.
	Stale []state.Consumed
}

// Direct reports whether the router answered without a handler.
func (d Decision) Direct() bool { return d.Target == "" }

// Router implements the routing precedence.
type Router struct {
	handlers   Directory
	classifier Classifier
	chatter    Chatter
	maxDepth   int
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

func WithClassifier(c Classifier) Option { return func(r *Router) { r.classifier = c } }
func WithChatter(c Chatter) Option       { return func(r *Router) { r.chatter = c } }

// WithMaxDepth overrides MaxLoopbackDepth.
func WithMaxDepth(n int) Option { return func(r *Router) { r.maxDepth = n } }

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a router over the given handler directory.
func New(handlers Directory, opts ...Option) *Router {
	r := &Router{
		handlers: handlers,
		maxDepth: MaxLoopbackDepth,
		logger:   logging.WithComponent("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxDepth returns the loopback ceiling in effect.
func (r *Router) MaxDepth() int { return r.maxDepth }

// pending is a control field in precedence order.
type pending struct {
	target string
	kind   state.Consumed
}

// Route picks the next step for msg. It never mutates st.
func (r *Router) Route(ctx context.Context, st *state.State, msg string) (Decision, error) {
	var stale []state.Consumed
	ctl := &st.Control

	controls := []pending{
		{ctl.AwaitingInput, state.ConsumedAwaiting},
		{ctl.Callback, state.ConsumedCallback},
		{ctl.DelegateTo, state.ConsumedDelegate},
	}
	if len(ctl.Chain) > 0 {
		controls = append(controls, pending{ctl.Chain[0], state.ConsumedChainHead})
	}
	for _, c := range controls {
		if c.target == "" {
			continue
		}
		if r.handlers.Has(c.target) {
			return Decision{Target: c.target, Consumed: c.kind, Stale: stale}, nil
		}
		r.logger.Warn("ignoring control naming unknown handler", "target", c.target, "conversation_id", st.ConversationID)
		stale = append(stale, c.kind)
	}

	if ctl.LoopbackDepth > r.maxDepth {
		r.logger.Warn("loopback ceiling reached", "depth", ctl.LoopbackDepth, "conversation_id", st.ConversationID)
		return Decision{Response: RestartText, Stale: stale}, nil
	}

	if cmd, ok := parseCommand(msg); ok {
		d := r.routeCommand(st, cmd)
		d.Stale = stale
		return d, nil
	}

	if !st.Domain.OnboardingComplete {
		return Decision{Target: handler.Onboarding, Stale: stale}, nil
	}

	d := r.classify(ctx, st, msg)
	d.Stale = stale
	return d, nil
}

func (r *Router) routeCommand(st *state.State, cmd string) Decision {
	target, ok := CommandTarget(cmd)
	if !ok {
		return Decision{Response: fmt.Sprintf("Unknown command: %s. Try /help for available commands.", cmd)}
	}
	switch cmd {
	case cmdStatus:
		return Decision{Response: StatusText(st)}
	case cmdHelp:
		return Decision{Response: HelpText()}
	}
	if guard, ok := CheckPrerequisites(&st.Domain, target); !ok {
		return Decision{Response: guard}
	}
	if !r.handlers.Has(target) {
		return Decision{Response: fmt.Sprintf("The %s feature is not available yet.", target)}
	}
	return Decision{Target: target}
}

func (r *Router) classify(ctx context.Context, st *state.State, msg string) Decision {
	if r.classifier == nil {
		return r.chat(ctx, st, msg)
	}
	c, err := r.classifier.Classify(ctx, st.Domain.Summary(), msg)
	if err != nil {
		r.logger.Warn("intent classification failed", "error", err, "conversation_id", st.ConversationID)
		return Decision{Response: ChatFallbackText}
	}
	target := strings.ToLower(strings.TrimSpace(c.Target))
	if target == handler.Orchestrator || !r.handlers.Has(target) {
		return r.chat(ctx, st, msg)
	}
	if guard, ok := CheckPrerequisites(&st.Domain, target); !ok {
		return Decision{Response: guard}
	}
	return Decision{Target: target, Echo: c.Echo}
}

func (r *Router) chat(ctx context.Context, st *state.State, msg string) Decision {
	if r.chatter == nil {
		return Decision{Response: ChatFallbackText}
	}
	reply, err := r.chatter.Chat(ctx, st, msg)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			r.logger.Warn("general chat failed", "error", err, "conversation_id", st.ConversationID)
		}
		return Decision{Response: ChatFallbackText}
	}
	return Decision{Response: reply}
}
