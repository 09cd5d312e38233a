// Package dispatcher runs one conversation turn through the routing graph.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sehgal-vip/travel-agent/graph"
	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/memory"
	"github.com/sehgal-vip/travel-agent/message"
	"github.com/sehgal-vip/travel-agent/middleware"
	"github.com/sehgal-vip/travel-agent/middleware/errorhandler"
	"github.com/sehgal-vip/travel-agent/middleware/logger"
	"github.com/sehgal-vip/travel-agent/middleware/timeout"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/pkg/telemetry"
	"github.com/sehgal-vip/travel-agent/router"
	"github.com/sehgal-vip/travel-agent/state"
)

// Fixed node names.
const (
	NodeRouter       = "router"
	NodeErrorHandler = "error_handler"
	nodeFinish       = "finish"
)

// DefaultHandlerTimeout bounds a single handler invocation.
const DefaultHandlerTimeout = 3 * time.Minute

// Memory is the subset of memory.Manager the dispatcher drives after a turn.
type Memory interface {
	Refresh(ctx context.Context, conversationID, handlerName string, st *state.State) (bool, error)
	AppendNotes(ctx context.Context, conversationID, handlerName, notes string) error
}

// Notetaker distills a handler exchange into note bullets for its memory
// document. An empty result appends nothing.
type Notetaker interface {
	Notes(ctx context.Context, st *state.State, handlerName, userMsg, reply string) (string, error)
}

// Outcome is the result of one turn.
type Outcome struct {
	// Reply joins Replies with blank lines.
	Reply   string
	Replies []string
	// Handler is the last node that produced output.
	Handler string
	State   *state.State
	Path    []string
}

// Dispatcher executes turns over a registry of handlers.
type Dispatcher struct {
	registry  *handler.Registry
	router    *router.Router
	graph     *graph.Graph
	chain     *middleware.MiddlewareChain
	memory    Memory
	notetaker Notetaker
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMemory refreshes memory documents after each turn.
func WithMemory(m Memory) Option { return func(d *Dispatcher) { d.memory = m } }

// WithNotetaker appends generated notes for notes-eligible handlers.
func WithNotetaker(n Notetaker) Option { return func(d *Dispatcher) { d.notetaker = n } }

// WithMiddleware replaces the default invocation chain.
func WithMiddleware(chain *middleware.MiddlewareChain) Option {
	return func(d *Dispatcher) {
		if chain != nil {
			d.chain = chain
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTracer sets a custom tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithClock overrides the history timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// DefaultChain returns the invocation chain used when none is configured.
func DefaultChain(log *slog.Logger) *middleware.MiddlewareChain {
	return middleware.NewChain(
		errorhandler.NewRecoverer(),
		logger.New(log),
		timeout.New(DefaultHandlerTimeout),
	)
}

// New builds a dispatcher. Handlers must be registered before New is called;
// the graph's allow-lists are fixed at construction.
func New(registry *handler.Registry, r *router.Router, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		router:   r,
		logger:   logging.WithComponent("dispatcher"),
		tracer:   telemetry.Tracer("dispatcher"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.chain == nil {
		d.chain = DefaultChain(d.logger.With("component", "handler"))
	}
	d.graph = d.buildGraph()
	return d
}

func (d *Dispatcher) buildGraph() *graph.Graph {
	names := d.registry.Names()
	b := graph.NewBuilder().
		AddRoutedNode(NodeRouter, graph.NodeTypeStart, d.routeStep, d.afterRoute).
		AddNode(NodeErrorHandler, graph.NodeTypeCustom, d.errorStep).
		AddNode(nodeFinish, graph.NodeTypeEnd, d.finishStep).
		AddEdge(NodeErrorHandler, graph.End)

	for _, name := range names {
		b.AddRoutedNode(name, graph.NodeTypeHandler, d.handlerStep(name), d.afterHandler(name))
		b.AddEdge(NodeRouter, name)
		b.AddEdge(name, NodeRouter)
		b.AddEdge(name, NodeErrorHandler)
		for _, other := range names {
			b.AddEdge(name, other)
		}
	}
	// The depth ceiling stops loops first; the visit cap is a backstop.
	return b.SetEnd(nodeFinish).SetMaxVisits(d.router.MaxDepth() + 2).Build()
}

type turnKey struct{}

// turn is the per-call scratch space shared by the graph nodes.
type turn struct {
	msg        string
	userLogged bool
	decision   router.Decision
	replies    []string
	responders []string
	last       string
	// reentered is set once the router has run for this turn.
	reentered bool
	// stop ends the turn at the router without a new decision.
	stop bool
}

func turnFrom(ctx context.Context) *turn {
	t, _ := ctx.Value(turnKey{}).(*turn)
	return t
}

// Turn processes one inbound message. The given state is not modified; the
// updated state is returned in the outcome.
func (d *Dispatcher) Turn(ctx context.Context, st *state.State, msg string) (_ *Outcome, err error) {
	if st == nil {
		return nil, errors.New("dispatcher: state is nil")
	}
	ctx, span := d.tracer.Start(ctx, "dispatcher.turn", trace.WithAttributes(
		telemetry.Conversation(st.ConversationID),
	))
	defer func() { telemetry.End(span, err) }()

	work := st.Clone()
	work.Control.Inbound = msg
	t := &turn{msg: msg}
	ctx = context.WithValue(ctx, turnKey{}, t)

	path, err := d.graph.Execute(ctx, work)
	if err != nil {
		if !errors.Is(err, graph.ErrLoop) {
			return nil, fmt.Errorf("dispatcher: turn failed: %w", err)
		}
		d.logger.Warn("routing loop stopped", "error", err, "conversation_id", st.ConversationID, "path", path)
		d.terminate(work)
		work.Control.Inbound = ""
	}

	span.SetAttributes(
		attribute.StringSlice("dispatcher.path", path),
		attribute.Int("dispatcher.depth", work.Control.LoopbackDepth),
	)

	d.afterTurn(ctx, work, t)

	return &Outcome{
		Reply:   strings.Join(t.replies, "\n\n"),
		Replies: t.replies,
		Handler: t.last,
		State:   work,
		Path:    path,
	}, nil
}

func (d *Dispatcher) logUser(st *state.State, t *turn) {
	if t.userLogged {
		return
	}
	st.Append(string(message.RoleUser), t.msg, "", d.now())
	t.userLogged = true
}

func (d *Dispatcher) respond(st *state.State, t *turn, node, text string) {
	d.logUser(st, t)
	st.Append(string(message.RoleAssistant), text, node, d.now())
	st.CurrentHandler = node
	t.replies = append(t.replies, text)
	t.last = node
}

func (d *Dispatcher) routeStep(ctx context.Context, st *state.State) error {
	t := turnFrom(ctx)
	reentry := t.reentered
	t.reentered = true

	dec, err := d.router.Route(ctx, st, t.msg)
	if err != nil {
		return err
	}
	for _, k := range dec.Stale {
		st.Control.Consume(k)
	}
	// On re-entry only queued controls may pick the next handler.
	if reentry && dec.Consumed == state.ConsumedNone {
		t.stop = true
		return nil
	}
	t.stop = false
	t.decision = dec
	st.Control.Consume(dec.Consumed)

	if dec.Direct() {
		d.respond(st, t, NodeRouter, dec.Response)
		return nil
	}
	st.Control.Next = dec.Target
	if dec.Echo != "" {
		st.Control.RoutingEcho = dec.Echo
	}
	return nil
}

func (d *Dispatcher) afterRoute(ctx context.Context, st *state.State) (string, error) {
	t := turnFrom(ctx)
	if t.stop || t.decision.Direct() {
		return graph.End, nil
	}
	return st.Control.Next, nil
}

func (d *Dispatcher) handlerStep(name string) graph.NodeFunc {
	return func(ctx context.Context, st *state.State) error {
		t := turnFrom(ctx)
		st.Control.Next = name

		res := d.invoke(ctx, name, st, t.msg)

		if len(res.Patch) > 0 {
			if err := st.Domain.Apply(res.Patch); err != nil {
				d.logger.Error("discarding handler update", "handler", name, "error", err, "conversation_id", st.ConversationID)
				res = handler.Result{Response: d.registry.Fallback(name)}
			}
		}

		reply := res.Response
		if strings.TrimSpace(reply) == "" && !continuesInTurn(res.Signal) {
			d.logger.Warn("handler returned no reply, using fallback", "handler", name, "conversation_id", st.ConversationID)
			reply = d.registry.Fallback(name)
		}
		if echo := st.Control.RoutingEcho; echo != "" {
			if reply != "" {
				reply = echo + "\n\n" + reply
			} else {
				reply = echo
			}
			st.Control.RoutingEcho = ""
		}
		if reply != "" {
			d.respond(st, t, name, reply)
		} else {
			d.logUser(st, t)
			st.CurrentHandler = name
			t.last = name
		}
		t.responders = append(t.responders, name)

		st.Control.LoopbackDepth++
		st.Control.Record(res.Signal)
		if fail, ok := res.Signal.(state.Fail); ok && fail.Handler == "" {
			st.Control.ErrorHandler = name
		}

		// Resume and Callback wait for the user; only in-turn hops are capped here.
		ctl := &st.Control
		if ctl.LoopbackDepth > d.router.MaxDepth() && (ctl.DelegateTo != "" || len(ctl.Chain) > 0) {
			d.logger.Warn("loopback ceiling reached, dropping continuation",
				"handler", name, "depth", ctl.LoopbackDepth, "conversation_id", st.ConversationID)
			ctl.DelegateTo = ""
			ctl.Chain = nil
		}
		return nil
	}
}

// invoke runs the handler on a private copy of st. Any failure yields the
// registered fallback text with no update and no signal.
func (d *Dispatcher) invoke(ctx context.Context, name string, st *state.State, msg string) (res handler.Result) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.handler", trace.WithAttributes(
		telemetry.Conversation(st.ConversationID),
		telemetry.Handler(name),
	))
	var err error
	defer func() { telemetry.End(span, err) }()

	h, err := d.registry.Get(name)
	if err != nil {
		return handler.Result{Response: d.registry.Fallback(name)}
	}
	mc := middleware.NewContext(ctx, name, st.Clone(), msg)
	if err = d.chain.Execute(mc, middleware.Invoke(h)); err != nil {
		d.logger.Error("handler failed, using fallback", "handler", name, "error", err, "conversation_id", st.ConversationID)
		return handler.Result{Response: d.registry.Fallback(name)}
	}
	return mc.Result
}

func (d *Dispatcher) afterHandler(name string) graph.RouteFunc {
	return func(ctx context.Context, st *state.State) (string, error) {
		ctl := &st.Control
		switch {
		case ctl.ErrorHandler != "":
			return NodeErrorHandler, nil
		case ctl.AwaitingInput != "" || ctl.Callback != "":
			return graph.End, nil
		case ctl.DelegateTo != "":
			target := ctl.DelegateTo
			ctl.Consume(state.ConsumedDelegate)
			if !d.registry.Has(target) {
				d.logger.Warn("ignoring delegation to unknown handler", "from", name, "target", target, "conversation_id", st.ConversationID)
				return graph.End, nil
			}
			ctl.Next = target
			return target, nil
		case len(ctl.Chain) > 0:
			return NodeRouter, nil
		}
		return graph.End, nil
	}
}

// ErrorText renders the single user-facing message for a failed handler.
func ErrorText(handlerName, context string) string {
	parts := []string{fmt.Sprintf("I ran into an issue with %s.", handlerName)}
	if c := strings.TrimSpace(context); c != "" {
		parts = append(parts, c)
	}
	parts = append(parts, "Please try again.")
	return strings.Join(parts, " ")
}

func (d *Dispatcher) errorStep(ctx context.Context, st *state.State) error {
	t := turnFrom(ctx)
	text := ErrorText(st.Control.ErrorHandler, st.Control.ErrorContext)
	d.logger.Warn("handler reported an error", "handler", st.Control.ErrorHandler, "context", st.Control.ErrorContext, "conversation_id", st.ConversationID)
	st.Control.ClearError()
	clearContinuations(&st.Control)
	d.respond(st, t, NodeErrorHandler, text)
	return nil
}

func (d *Dispatcher) finishStep(ctx context.Context, st *state.State) error {
	st.Control.Inbound = ""
	if pending(&st.Control) {
		if st.Control.AwaitingInput != "" {
			st.Control.Next = st.Control.AwaitingInput
		}
		return nil
	}
	d.terminate(st)
	return nil
}

func (d *Dispatcher) terminate(st *state.State) {
	clearContinuations(&st.Control)
	st.Control.ClearError()
	st.Control.RoutingEcho = ""
	st.Control.Terminate()
}

// continuesInTurn reports whether sig moves the turn to another node that
// can still answer the user.
func continuesInTurn(sig state.Signal) bool {
	switch s := sig.(type) {
	case state.Delegate:
		return s.Target != ""
	case state.Chain:
		return len(s.Queue) > 0
	case state.Fail:
		return true
	}
	return false
}

func pending(c *state.Control) bool {
	return c.AwaitingInput != "" || c.Callback != "" || c.DelegateTo != "" || len(c.Chain) > 0
}

func clearContinuations(c *state.Control) {
	c.AwaitingInput = ""
	c.Callback = ""
	c.DelegateTo = ""
	c.Chain = nil
}

// afterTurn refreshes memory for every eligible responder, then appends notes.
// Failures are logged; the turn's reply is already decided.
func (d *Dispatcher) afterTurn(ctx context.Context, st *state.State, t *turn) {
	if d.memory == nil || len(t.responders) == 0 {
		return
	}
	seen := make(map[string]bool, len(t.responders))
	for _, name := range t.responders {
		if seen[name] || !memory.Eligible(name) {
			continue
		}
		seen[name] = true
		if _, err := d.memory.Refresh(ctx, st.ConversationID, name, st); err != nil {
			d.logger.Error("memory refresh failed", "handler", name, "error", err, "conversation_id", st.ConversationID)
		}
		if d.notetaker == nil || !memory.NotesEligible(name) {
			continue
		}
		d.takeNotes(ctx, st, name, t)
	}
}

func (d *Dispatcher) takeNotes(ctx context.Context, st *state.State, name string, t *turn) {
	reply := lastReplyOf(st, name)
	notes, err := d.notetaker.Notes(ctx, st, name, t.msg, reply)
	if err != nil {
		d.logger.Warn("note generation failed", "handler", name, "error", err, "conversation_id", st.ConversationID)
		return
	}
	if strings.TrimSpace(notes) == "" {
		return
	}
	if err := d.memory.AppendNotes(ctx, st.ConversationID, name, notes); err != nil {
		d.logger.Error("appending notes failed", "handler", name, "error", err, "conversation_id", st.ConversationID)
	}
}

func lastReplyOf(st *state.State, name string) string {
	for i := len(st.History) - 1; i >= 0; i-- {
		if e := st.History[i]; e.Handler == name && e.Role == string(message.RoleAssistant) {
			return e.Text
		}
	}
	return ""
}
