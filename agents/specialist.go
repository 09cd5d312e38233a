package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/llm"
	"github.com/sehgal-vip/travel-agent/memory"
	"github.com/sehgal-vip/travel-agent/message"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/prompt"
	"github.com/sehgal-vip/travel-agent/state"
)

const replyFormat = `Reply with a single JSON object and nothing else:
{
  "response": "message shown to the traveler",
  "state_updates": {"<key>": <full new value>},
  "awaiting_input": false,
  "delegate_to": "",
  "callback": "",
  "chain": [],
  "error": ""
}
Set awaiting_input when you asked a question and need the answer.
Set delegate_to to hand the turn to another specialist now, callback to have one run next,
or chain to queue several in order. Set error only when you cannot do the task.`

// MemoryInjector returns a handler's memory document fitted to a token budget.
type MemoryInjector interface {
	Inject(ctx context.Context, conversationID, handlerName string, st *state.State, budget int) (string, error)
}

// reply is the structured output a specialist is asked for.
type reply struct {
	Response      string         `json:"response"`
	StateUpdates  map[string]any `json:"state_updates"`
	AwaitingInput bool           `json:"awaiting_input"`
	DelegateTo    string         `json:"delegate_to"`
	Callback      string         `json:"callback"`
	Chain         []string       `json:"chain"`
	Error         string         `json:"error"`
}

// Vars are the values available to instruction templates.
type Vars struct {
	Handler  string
	Country  string
	Currency string
	Today    string
}

// Specialist is a handler that asks a text generator for a structured reply.
type Specialist struct {
	spec    Spec
	gen     llm.Generator
	retry   llm.Retry
	memory  MemoryInjector
	prompts *prompt.Manager
	counter memory.TokenCounter
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Specialist.
type Option func(*Specialist)

// WithRetry overrides llm.DefaultRetry.
func WithRetry(r llm.Retry) Option {
	return func(s *Specialist) { s.retry = r }
}

// WithMemory enables memory injection for memory-eligible specialists.
func WithMemory(m MemoryInjector) Option {
	return func(s *Specialist) { s.memory = m }
}

// WithPrompts shares a template manager. The specialist's instructions are
// registered on first use when missing.
func WithPrompts(m *prompt.Manager) Option {
	return func(s *Specialist) {
		if m != nil {
			s.prompts = m
		}
	}
}

// WithTokenCounter sets the counter used to size the memory budget.
func WithTokenCounter(c memory.TokenCounter) Option {
	return func(s *Specialist) {
		if c != nil {
			s.counter = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Specialist) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Specialist) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSpecialist creates a specialist for spec.
func NewSpecialist(spec Spec, gen llm.Generator, opts ...Option) (*Specialist, error) {
	if spec.Name == "" || gen == nil {
		return nil, fmt.Errorf("new specialist %q: %w", spec.Name, errorskg.ErrInvalidInput)
	}
	s := &Specialist{
		spec:    spec,
		gen:     gen,
		retry:   llm.DefaultRetry(),
		prompts: prompt.NewManager(),
		counter: runeCounter{},
		logger:  logging.WithComponent("agents"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.prompts.Get(spec.Name); err != nil {
		if err := s.prompts.RegisterString(spec.Name, spec.Instructions); err != nil && !errors.Is(err, errorskg.ErrAlreadyExists) {
			return nil, fmt.Errorf("new specialist %q: %w", spec.Name, err)
		}
	}
	s.logger = s.logger.With("handler", spec.Name)
	return s, nil
}

// Name returns the handler name.
func (s *Specialist) Name() string { return s.spec.Name }

// runeCounter matches the memory package's estimate.
type runeCounter struct{}

func (runeCounter) CountTokens(text string) int { return len([]rune(text)) / 3 }

func (s *Specialist) vars(st *state.State) Vars {
	v := Vars{Handler: s.spec.Name, Today: s.now().UTC().Format("2006-01-02")}
	if d := st.Domain.Destination; d != nil {
		v.Country = d.Country
		v.Currency = d.CurrencyCode
	}
	return v
}

// SystemPrompt assembles the system prompt for st, fitting memory into
// whatever budget the rest of the request leaves.
func (s *Specialist) SystemPrompt(ctx context.Context, st *state.State, history []*message.Message, msg string) (string, error) {
	instructions, err := s.prompts.Render(s.spec.Name, s.vars(st))
	if err != nil {
		return "", err
	}
	b := prompt.NewBuilder().
		Add(Tone).
		Add(instructions).
		AddFormat("You may update only these keys: %s.", strings.Join(s.spec.Owns, ", ")).
		Add(replyFormat)

	if s.memory == nil || !memory.Eligible(s.spec.Name) {
		return b.AddBlock("DESTINATION CONTEXT", DestinationContext(&st.Domain)).Build(), nil
	}

	used := s.counter.CountTokens(b.Build()) + s.counter.CountTokens(msg)
	for _, m := range history {
		used += s.counter.CountTokens(m.Content)
	}
	budget := InputBudget - used - s.spec.maxTokens()
	doc, err := s.memory.Inject(ctx, st.ConversationID, s.spec.Name, st, budget)
	if err != nil {
		s.logger.Warn("memory injection failed", "error", err, "conversation_id", st.ConversationID)
	}
	if err != nil || strings.TrimSpace(doc) == "" {
		return b.AddBlock("DESTINATION CONTEXT", DestinationContext(&st.Domain)).Build(), nil
	}
	return b.AddBlock(strings.ToUpper(s.spec.Name)+" MEMORY", doc).Build(), nil
}

// Handle implements handler.Handler.
func (s *Specialist) Handle(ctx context.Context, st *state.State, msg string) (handler.Result, error) {
	history := HistoryMessages(st.History, KeepRecent)
	system, err := s.SystemPrompt(ctx, st, history, msg)
	if err != nil {
		return handler.Result{}, fmt.Errorf("%s: build prompt: %w", s.spec.Name, err)
	}

	msgs := make([]*message.Message, 0, len(history)+2)
	msgs = append(msgs, message.System(system))
	msgs = append(msgs, history...)
	msgs = append(msgs, message.User(msg))

	text, err := s.retry.Generate(ctx, s.gen, llm.Request{Messages: msgs, MaxTokens: s.spec.maxTokens()})
	if err != nil {
		return handler.Result{}, fmt.Errorf("%s: generate: %w", s.spec.Name, err)
	}

	var out reply
	if err := handler.ParseJSON(text, &out); err != nil {
		s.logger.Warn("unstructured reply, returning raw text", "conversation_id", st.ConversationID)
		return handler.Result{Response: strings.TrimSpace(text)}, nil
	}
	return s.result(st, out), nil
}

func (s *Specialist) result(st *state.State, out reply) handler.Result {
	res := handler.Result{Response: strings.TrimSpace(out.Response)}

	if len(out.StateUpdates) > 0 {
		res.Patch = make(state.Patch, len(out.StateUpdates))
		for k, v := range out.StateUpdates {
			if !s.spec.owns(k) {
				s.logger.Warn("dropping update to unowned key", "key", k, "conversation_id", st.ConversationID)
				continue
			}
			res.Patch[k] = v
		}
	}

	switch {
	case out.Error != "":
		res.Signal = state.Fail{Handler: s.spec.Name, Context: out.Error}
	case out.AwaitingInput:
		res.Signal = state.Resume{Target: s.spec.Name}
	case out.DelegateTo != "":
		res.Signal = state.Delegate{Target: out.DelegateTo}
	case out.Callback != "":
		res.Signal = state.Callback{Target: out.Callback}
	case len(out.Chain) > 0:
		res.Signal = state.Chain{Queue: out.Chain}
	case s.spec.AwaitUntilOnboarded && !onboarded(st, res.Patch):
		res.Signal = state.Resume{Target: s.spec.Name}
	}
	return res
}

func onboarded(st *state.State, p state.Patch) bool {
	if v, ok := p["onboarding_complete"]; ok {
		done, _ := v.(bool)
		return done
	}
	return st.Domain.OnboardingComplete
}
