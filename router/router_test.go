package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/state"
)

type names map[string]bool

func (n names) Has(name string) bool { return n[name] }

func allHandlers() names {
	return names{
		handler.Onboarding: true, handler.Research: true, handler.Prioritizer: true,
		handler.Planner: true, handler.Scheduler: true, handler.Feedback: true, handler.Cost: true,
	}
}

type classifierFunc func(ctx context.Context, summary, msg string) (Classification, error)

func (f classifierFunc) Classify(ctx context.Context, summary, msg string) (Classification, error) {
	return f(ctx, summary, msg)
}

type chatterFunc func(ctx context.Context, st *state.State, msg string) (string, error)

func (f chatterFunc) Chat(ctx context.Context, st *state.State, msg string) (string, error) {
	return f(ctx, st, msg)
}

func fixed(target string) Classifier {
	return classifierFunc(func(context.Context, string, string) (Classification, error) {
		return Classification{Target: target}, nil
	})
}

func onboarded() *state.State {
	st := state.New("conv-1")
	st.Domain.OnboardingComplete = true
	st.Domain.Destination = &state.Destination{Country: "Japan", FlagEmoji: "🇯🇵", CurrencyCode: "JPY"}
	st.Domain.Cities = []state.City{{Name: "Tokyo"}, {Name: "Kyoto"}}
	return st
}

func newRouter(opts ...Option) *Router {
	return New(allHandlers(), append([]Option{WithLogger(logging.Discard())}, opts...)...)
}

func TestAwaitingInputBeatsCommand(t *testing.T) {
	st := onboarded()
	st.Control.AwaitingInput = handler.Research

	d, err := newRouter().Route(context.Background(), st, "/costs")
	require.NoError(t, err)
	assert.Equal(t, handler.Research, d.Target)
	assert.Equal(t, state.ConsumedAwaiting, d.Consumed)
	assert.Equal(t, handler.Research, st.Control.AwaitingInput, "router must not mutate state")
}

func TestControlPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		ctl      state.Control
		target   string
		consumed state.Consumed
	}{
		{
			name:     "awaiting beats everything",
			ctl:      state.Control{AwaitingInput: "planner", Callback: "cost", DelegateTo: "feedback", Chain: []string{"scheduler"}},
			target:   "planner",
			consumed: state.ConsumedAwaiting,
		},
		{
			name:     "callback beats delegate",
			ctl:      state.Control{Callback: "cost", DelegateTo: "feedback", Chain: []string{"scheduler"}},
			target:   "cost",
			consumed: state.ConsumedCallback,
		},
		{
			name:     "delegate beats chain",
			ctl:      state.Control{DelegateTo: "feedback", Chain: []string{"scheduler"}},
			target:   "feedback",
			consumed: state.ConsumedDelegate,
		},
		{
			name:     "chain head",
			ctl:      state.Control{Chain: []string{"scheduler", "cost"}},
			target:   "scheduler",
			consumed: state.ConsumedChainHead,
		},
		{
			name:     "controls beat depth ceiling",
			ctl:      state.Control{AwaitingInput: "research", LoopbackDepth: 3},
			target:   "research",
			consumed: state.ConsumedAwaiting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := onboarded()
			st.Control = tt.ctl
			d, err := newRouter().Route(context.Background(), st, "/plan")
			require.NoError(t, err)
			assert.Equal(t, tt.target, d.Target)
			assert.Equal(t, tt.consumed, d.Consumed)
		})
	}
}

func TestUnknownAwaitingFallsThrough(t *testing.T) {
	st := onboarded()
	st.Control.AwaitingInput = "nonexistent"

	d, err := newRouter().Route(context.Background(), st, "/research")
	require.NoError(t, err)
	assert.Equal(t, handler.Research, d.Target)
	assert.Equal(t, state.ConsumedNone, d.Consumed)
	assert.Equal(t, []state.Consumed{state.ConsumedAwaiting}, d.Stale)
}

func TestDepthCeiling(t *testing.T) {
	st := onboarded()
	st.Control.LoopbackDepth = 6

	d, err := newRouter().Route(context.Background(), st, "anything")
	require.NoError(t, err)
	assert.True(t, d.Direct())
	assert.Equal(t, RestartText, d.Response)

	st.Control.LoopbackDepth = 5
	d, err = newRouter(WithClassifier(fixed("cost"))).Route(context.Background(), st, "how much so far")
	require.NoError(t, err)
	assert.Equal(t, handler.Cost, d.Target)
}

func TestCommands(t *testing.T) {
	withResearch := onboarded()
	withResearch.Domain.Research = map[string]state.CityResearch{"Tokyo": {}}

	withPlan := onboarded()
	withPlan.Domain.Plan = []state.DayPlan{{Day: 1, City: "Tokyo"}}

	tests := []struct {
		name     string
		st       *state.State
		msg      string
		target   string
		response string
	}{
		{name: "plan without research", st: onboarded(), msg: "/plan", response: "You need to research cities first. Try /research all"},
		{name: "plan without priorities", st: withResearch, msg: "/plan", response: "You need to set priorities first. Try /priorities"},
		{name: "priorities with research", st: withResearch, msg: "/priorities", target: handler.Prioritizer},
		{name: "agenda without plan", st: onboarded(), msg: "/agenda", response: "You need a plan first. Try /plan"},
		{name: "agenda with plan", st: withPlan, msg: "/agenda", target: handler.Scheduler},
		{name: "research with argument", st: onboarded(), msg: "/research Tokyo", target: handler.Research},
		{name: "case insensitive", st: onboarded(), msg: "/COSTS", target: handler.Cost},
		{name: "adjust maps to feedback", st: onboarded(), msg: "/adjust", target: handler.Feedback},
		{name: "unknown command", st: onboarded(), msg: "/teleport now", response: "Unknown command: /teleport. Try /help for available commands."},
		{name: "not onboarded", st: state.New("c"), msg: "/costs", response: SetupHint},
		{name: "start while not onboarded", st: state.New("c"), msg: "/start", target: handler.Onboarding},
		{name: "unregistered target", st: onboarded(), msg: "/library", response: "The librarian feature is not available yet."},
		{name: "help", st: state.New("c"), msg: "/help", response: HelpText()},
		{name: "trip switching is not routed", st: onboarded(), msg: "/trip new", response: "Unknown command: /trip. Try /help for available commands."},
		{name: "trip list is not routed", st: onboarded(), msg: "/trips", response: "Unknown command: /trips. Try /help for available commands."},
		{name: "join is not routed", st: onboarded(), msg: "/join abc123", response: "Unknown command: /join. Try /help for available commands."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := newRouter().Route(context.Background(), tt.st, tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.target, d.Target)
			assert.Equal(t, tt.response, d.Response)
		})
	}
}

func TestOnboardingGuard(t *testing.T) {
	called := false
	r := newRouter(WithClassifier(classifierFunc(func(context.Context, string, string) (Classification, error) {
		called = true
		return Classification{Target: "cost"}, nil
	})))

	d, err := r.Route(context.Background(), state.New("c"), "we're going to Japan")
	require.NoError(t, err)
	assert.Equal(t, handler.Onboarding, d.Target)
	assert.False(t, called)
}

func TestClassification(t *testing.T) {
	t.Run("routes with echo and summary", func(t *testing.T) {
		var summary string
		r := newRouter(WithClassifier(classifierFunc(func(_ context.Context, s, _ string) (Classification, error) {
			summary = s
			return Classification{Target: " Research ", Echo: "Let me check with the research team..."}, nil
		})))
		d, err := r.Route(context.Background(), onboarded(), "what should we eat in Kyoto")
		require.NoError(t, err)
		assert.Equal(t, handler.Research, d.Target)
		assert.Equal(t, "Let me check with the research team...", d.Echo)
		assert.Contains(t, summary, "destination=Japan")
	})

	t.Run("prerequisites re-checked", func(t *testing.T) {
		d, err := newRouter(WithClassifier(fixed("planner"))).Route(context.Background(), onboarded(), "make a plan")
		require.NoError(t, err)
		assert.True(t, d.Direct())
		assert.Equal(t, "You need to research cities first. Try /research all", d.Response)
	})

	t.Run("unknown result goes to chat", func(t *testing.T) {
		chat := chatterFunc(func(context.Context, *state.State, string) (string, error) {
			return "Hello there!", nil
		})
		d, err := newRouter(WithClassifier(fixed("weather")), WithChatter(chat)).Route(context.Background(), onboarded(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "Hello there!", d.Response)
	})

	t.Run("classifier error degrades", func(t *testing.T) {
		failing := classifierFunc(func(context.Context, string, string) (Classification, error) {
			return Classification{}, errors.New("timeout")
		})
		d, err := newRouter(WithClassifier(failing)).Route(context.Background(), onboarded(), "hi")
		require.NoError(t, err)
		assert.Equal(t, ChatFallbackText, d.Response)
	})

	t.Run("chat error degrades", func(t *testing.T) {
		chat := chatterFunc(func(context.Context, *state.State, string) (string, error) {
			return "", errors.New("down")
		})
		d, err := newRouter(WithClassifier(fixed("orchestrator")), WithChatter(chat)).Route(context.Background(), onboarded(), "hi")
		require.NoError(t, err)
		assert.Equal(t, ChatFallbackText, d.Response)
	})
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Your trip hasn't been set up yet. Send /start to begin planning!", StatusText(state.New("c")))

	st := onboarded()
	st.Domain.Dates = &state.Dates{TotalDays: 10}
	st.Domain.Research = map[string]state.CityResearch{"Tokyo": {}}
	st.Domain.Costs = &state.CostTracker{Totals: &state.CostTotals{SpentUSD: 1234}}
	text := StatusText(st)
	assert.Contains(t, text, "🇯🇵 Japan Trip — 10 Days — Planning Status")
	assert.Contains(t, text, "✅ Research: 1/2 cities")
	assert.Contains(t, text, "❌ Priorities: 0/2 cities")
	assert.Contains(t, text, "❌ Itinerary: Not started")
	assert.Contains(t, text, "💰 Budget: JPY / $1234 spent")
}
