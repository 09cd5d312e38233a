package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/llm"
	"github.com/sehgal-vip/travel-agent/message"
	"github.com/sehgal-vip/travel-agent/state"
)

var once = llm.Retry{MaxAttempts: 1}

// scripted replies with text and records every request.
type scripted struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []llm.Request
}

func (s *scripted) Generate(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.text, s.err
}

func (s *scripted) last(t *testing.T) llm.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

type fakeInjector struct {
	doc    string
	err    error
	budget int
}

func (f *fakeInjector) Inject(_ context.Context, _, _ string, _ *state.State, budget int) (string, error) {
	f.budget = budget
	return f.doc, f.err
}

func japan() *state.State {
	st := state.New("conv-1")
	st.Domain = state.Domain{
		Destination: &state.Destination{
			Country:           "Japan",
			FlagEmoji:         "🇯🇵",
			Region:            "East Asia",
			Language:          "Japanese",
			CurrencyCode:      "JPY",
			CurrencySymbol:    "¥",
			ExchangeRateToUSD: 150,
			UsefulPhrases:     map[string]string{"thank you": "arigatou", "hello": "konnichiwa"},
		},
		Cities:             []state.City{{Name: "Tokyo", Days: 4}, {Name: "Kyoto", Days: 3}},
		Dates:              &state.Dates{Start: "2026-04-01", End: "2026-04-07", TotalDays: 7},
		Travelers:          &state.Travelers{Count: 2, Type: "couple"},
		Budget:             &state.Budget{Style: "midrange"},
		Interests:          []string{"food", "temples"},
		OnboardingComplete: true,
	}
	return st
}

func specialist(t *testing.T, name string, gen llm.Generator, opts ...Option) *Specialist {
	t.Helper()
	spec, ok := Lookup(name)
	require.True(t, ok)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opts = append([]Option{WithRetry(once), WithClock(func() time.Time { return fixed })}, opts...)
	s, err := NewSpecialist(spec, gen, opts...)
	require.NoError(t, err)
	return s
}

func TestCatalog(t *testing.T) {
	names := make([]string, 0)
	for _, s := range Catalog() {
		names = append(names, s.Name)
		assert.NotEmpty(t, s.Owns, s.Name)
		assert.NotEmpty(t, s.Description, s.Name)
	}
	assert.Equal(t, []string{
		handler.Onboarding, handler.Research, handler.Prioritizer,
		handler.Planner, handler.Scheduler, handler.Feedback, handler.Cost,
	}, names)

	research, _ := Lookup(handler.Research)
	assert.Equal(t, 16384, research.maxTokens())
	cost, _ := Lookup(handler.Cost)
	assert.Equal(t, DefaultMaxTokens, cost.maxTokens())

	_, ok := Lookup(handler.Orchestrator)
	assert.False(t, ok)
	_, ok = Lookup(handler.Librarian)
	assert.False(t, ok)

	roster := Roster()
	assert.Len(t, roster, len(Catalog())+1)
	assert.Equal(t, handler.Librarian, roster[len(roster)-1].Name)
}

func TestRegister(t *testing.T) {
	reg := handler.NewRegistry()
	require.NoError(t, Register(reg, &scripted{}, WithRetry(once)))
	assert.Len(t, reg.Names(), len(Catalog()))
	assert.False(t, reg.Has(handler.Librarian))

	err := Register(reg, &scripted{})
	assert.ErrorIs(t, err, errorskg.ErrAlreadyExists)
}

func TestNewSpecialistValidates(t *testing.T) {
	_, err := NewSpecialist(Spec{}, &scripted{})
	assert.ErrorIs(t, err, errorskg.ErrInvalidInput)

	_, err = NewSpecialist(Spec{Name: "x", Instructions: "{{.Broken"}, &scripted{})
	assert.Error(t, err)
}

func TestDestinationContext(t *testing.T) {
	assert.Empty(t, DestinationContext(&state.Domain{}))

	out := DestinationContext(&japan().Domain)
	assert.Equal(t, strings.Join([]string{
		"Country: 🇯🇵 Japan",
		"Region: East Asia",
		"Language: Japanese",
		"Currency: JPY (¥)",
		"Exchange rate: 1 USD = 150 JPY",
		"Climate: unknown",
		"Payment norms: unknown",
		"Tipping: unknown",
		`Key phrases: "hello" = "konnichiwa", "thank you" = "arigatou"`,
		"Route: Tokyo (4d) → Kyoto (3d)",
		"Dates: 2026-04-01 to 2026-04-07 (7 days)",
		"Travelers: 2 (couple)",
		"Budget style: midrange",
		"Interests: food, temples",
	}, "\n"), out)
}

func TestDestinationContextMissingValues(t *testing.T) {
	d := &state.Domain{
		Destination: &state.Destination{Country: "Peru"},
		Cities:      []state.City{{Name: "Cusco"}},
	}
	out := DestinationContext(d)
	assert.Contains(t, out, "Country: Peru\n")
	assert.Contains(t, out, "Currency: ? (?)")
	assert.Contains(t, out, "Route: Cusco (?d)")
}

func history(n int) []state.Entry {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]state.Entry, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, state.Entry{Role: "user", Text: fmt.Sprintf("question %d. more detail", i), Timestamp: at})
			continue
		}
		out = append(out, state.Entry{Role: "assistant", Handler: handler.Research, Text: fmt.Sprintf("answer %d. more detail", i), Timestamp: at})
	}
	return out
}

func TestCompressHistoryShort(t *testing.T) {
	h := history(4)
	summary, recent := CompressHistory(h, KeepRecent)
	assert.Empty(t, summary)
	assert.Equal(t, h, recent)
}

func TestCompressHistory(t *testing.T) {
	h := history(30)
	summary, recent := CompressHistory(h, KeepRecent)
	require.Len(t, recent, KeepRecent)
	assert.Equal(t, h[15:], recent)

	assert.Equal(t, strings.Join([]string{
		"## Conversation Summary (older messages)",
		"- User discussed: question 0; question 2; question 4; question 6; question 8",
		"- research covered: answer 1; answer 3; answer 5",
	}, "\n"), summary)
}

func TestSnippetCapsLength(t *testing.T) {
	long := strings.Repeat("a", 150) + ". tail"
	assert.Len(t, []rune(snippet(long)), snippetLen)
	assert.Equal(t, "short", snippet("short. sentence"))
}

func TestHistoryMessages(t *testing.T) {
	msgs := HistoryMessages(history(20), KeepRecent)
	require.Len(t, msgs, KeepRecent+1)
	assert.Equal(t, message.RoleUser, msgs[0].Role)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "[Prior conversation summary]\n## Conversation Summary"))
	assert.Equal(t, message.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "answer 5. more detail", msgs[1].Content)
}

func TestSpecialistStructuredReply(t *testing.T) {
	gen := &scripted{text: `{
		"response": "Tokyo is researched.",
		"state_updates": {"research": {"Tokyo": {"places": [{"name": "Senso-ji"}]}}, "budget": {"style": "luxury"}}
	}`}
	s := specialist(t, handler.Research, gen)
	st := japan()

	res, err := s.Handle(context.Background(), st, "research Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo is researched.", res.Response)
	assert.Nil(t, res.Signal)
	assert.Contains(t, res.Patch, "research")
	assert.NotContains(t, res.Patch, "budget")

	req := gen.last(t)
	assert.Equal(t, 16384, req.MaxTokens)
	require.GreaterOrEqual(t, len(req.Messages), 2)
	assert.Equal(t, message.RoleSystem, req.Messages[0].Role)
	assert.True(t, strings.HasPrefix(req.Messages[0].Content, Tone))
	assert.Contains(t, req.Messages[0].Content, "Research Agent for a trip to Japan")
	assert.Contains(t, req.Messages[0].Content, "--- DESTINATION CONTEXT ---")
	assert.Equal(t, "research Tokyo", req.Messages[len(req.Messages)-1].Content)
}

func TestSpecialistSignals(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  state.Signal
	}{
		{"awaiting", `{"response":"Which city?","awaiting_input":true}`, state.Resume{Target: handler.Planner}},
		{"delegate", `{"response":"ok","delegate_to":"research"}`, state.Delegate{Target: handler.Research}},
		{"callback", `{"response":"ok","callback":"scheduler"}`, state.Callback{Target: handler.Scheduler}},
		{"chain", `{"response":"ok","chain":["research","prioritizer"]}`, state.Chain{Queue: []string{"research", "prioritizer"}}},
		{"error", `{"response":"","error":"no priorities yet","awaiting_input":true}`, state.Fail{Handler: handler.Planner, Context: "no priorities yet"}},
		{"terminal", `{"response":"done"}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := specialist(t, handler.Planner, &scripted{text: tt.reply})
			res, err := s.Handle(context.Background(), japan(), "plan it")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Signal)
		})
	}
}

func TestSpecialistFencedReply(t *testing.T) {
	gen := &scripted{text: "Here you go:\n```json\n{\"response\": \"Plan drafted.\", \"state_updates\": {\"plan_status\": \"draft\"}}\n```"}
	s := specialist(t, handler.Planner, gen)

	res, err := s.Handle(context.Background(), japan(), "/plan")
	require.NoError(t, err)
	assert.Equal(t, "Plan drafted.", res.Response)
	assert.Equal(t, state.Patch{"plan_status": "draft"}, res.Patch)
}

func TestSpecialistUnparsedReply(t *testing.T) {
	s := specialist(t, handler.Cost, &scripted{text: "  You have spent $120 so far.  "})

	res, err := s.Handle(context.Background(), japan(), "/costs")
	require.NoError(t, err)
	assert.Equal(t, "You have spent $120 so far.", res.Response)
	assert.Empty(t, res.Patch)
	assert.Nil(t, res.Signal)
}

func TestSpecialistGenerationFailure(t *testing.T) {
	boom := errors.New("service unavailable")
	s := specialist(t, handler.Cost, &scripted{err: boom})

	_, err := s.Handle(context.Background(), japan(), "/costs")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, errorskg.ErrRetriesExhausted)
}

func TestOnboardingResumesUntilComplete(t *testing.T) {
	st := japan()
	st.Domain.OnboardingComplete = false

	s := specialist(t, handler.Onboarding, &scripted{text: `{"response":"How many travelers?","state_updates":{"dates":{"start":"2026-04-01"}}}`})
	res, err := s.Handle(context.Background(), st, "April 1st")
	require.NoError(t, err)
	assert.Equal(t, state.Resume{Target: handler.Onboarding}, res.Signal)

	s = specialist(t, handler.Onboarding, &scripted{text: `{"response":"All set!","state_updates":{"onboarding_complete":true}}`})
	res, err = s.Handle(context.Background(), st, "yes")
	require.NoError(t, err)
	assert.Nil(t, res.Signal)
}

func TestSpecialistInjectsMemory(t *testing.T) {
	inj := &fakeInjector{doc: "## Trip Context\nJapan"}
	gen := &scripted{text: `{"response":"ok"}`}
	s := specialist(t, handler.Research, gen, WithMemory(inj))

	_, err := s.Handle(context.Background(), japan(), "research Kyoto")
	require.NoError(t, err)

	system := gen.last(t).Messages[0].Content
	assert.Contains(t, system, "--- RESEARCH MEMORY ---\n## Trip Context\nJapan\n--- END RESEARCH MEMORY ---")
	assert.NotContains(t, system, "DESTINATION CONTEXT")
	assert.Greater(t, inj.budget, 0)
	assert.Less(t, inj.budget, InputBudget-16384)
}

func TestSpecialistMemoryFallsBackToDestination(t *testing.T) {
	for name, inj := range map[string]*fakeInjector{
		"error": {err: errors.New("disk full")},
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			gen := &scripted{text: `{"response":"ok"}`}
			s := specialist(t, handler.Research, gen, WithMemory(inj))

			_, err := s.Handle(context.Background(), japan(), "research Kyoto")
			require.NoError(t, err)
			assert.Contains(t, gen.last(t).Messages[0].Content, "--- DESTINATION CONTEXT ---")
		})
	}
}

func TestSpecialistSkipsMemoryForIneligibleHandler(t *testing.T) {
	inj := &fakeInjector{doc: "unused"}
	gen := &scripted{text: `{"response":"Noted."}`}
	s := specialist(t, handler.Onboarding, gen, WithMemory(inj))

	_, err := s.Handle(context.Background(), japan(), "add Osaka")
	require.NoError(t, err)
	system := gen.last(t).Messages[0].Content
	assert.Contains(t, system, "--- DESTINATION CONTEXT ---")
	assert.NotContains(t, system, "unused")
	assert.Zero(t, inj.budget)
}

func TestClassifier(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		target string
		echo   string
	}{
		{"bare", "research.", handler.Research, ""},
		{"quoted", "`planner`", handler.Planner, ""},
		{"json", `{"target":"Cost","echo":"Checking your budget..."}`, handler.Cost, "Checking your budget..."},
		{"unknown", "weather", handler.Orchestrator, ""},
		{"orchestrator", "orchestrator", handler.Orchestrator, ""},
		{"empty", "", handler.Orchestrator, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scripted{text: tt.reply}
			c := NewClassifier(gen, once, Catalog())

			got, err := c.Classify(context.Background(), "onboarding_complete=true", "what now")
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Target)
			assert.Equal(t, tt.echo, got.Echo)
		})
	}
}

func TestClassifierPrompt(t *testing.T) {
	gen := &scripted{text: "cost"}
	c := NewClassifier(gen, once, Catalog())
	_, err := c.Classify(context.Background(), "destination=Japan", "how much have I spent")
	require.NoError(t, err)

	req := gen.last(t)
	system := req.Messages[0].Content
	assert.Contains(t, system, "- research: ")
	assert.Contains(t, system, "- orchestrator: general chat")
	assert.Contains(t, system, "destination=Japan")
	assert.Contains(t, system, "Respond with ONLY the agent name")
	assert.Equal(t, "how much have I spent", req.Messages[1].Content)
}

func TestClassifierError(t *testing.T) {
	c := NewClassifier(&scripted{err: errors.New("timeout")}, once, Catalog())
	_, err := c.Classify(context.Background(), "", "hi")
	assert.Error(t, err)
}

func TestNotetaker(t *testing.T) {
	gen := &scripted{text: "Notes:\n- [pinned] Vegetarian\n- Prefers mornings\n\n- Wants onsen\n- Fourth line"}
	n := NewNotetaker(gen, once)

	notes, err := n.Notes(context.Background(), japan(), handler.Research, "I'm vegetarian", "Noted!")
	require.NoError(t, err)
	assert.Equal(t, "- [pinned] Vegetarian\n- Prefers mornings\n- Wants onsen", notes)

	req := gen.last(t)
	assert.Contains(t, req.Messages[0].Content, "research agent")
	assert.Equal(t, "Traveler: I'm vegetarian\n\nresearch agent: Noted!", req.Messages[1].Content)
}

func TestNotetakerNothingToKeep(t *testing.T) {
	n := NewNotetaker(&scripted{text: " none \n"}, once)
	notes, err := n.Notes(context.Background(), japan(), handler.Planner, "thanks", "You're welcome")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestNotetakerError(t *testing.T) {
	n := NewNotetaker(&scripted{err: errors.New("down")}, once)
	_, err := n.Notes(context.Background(), japan(), handler.Planner, "a", "b")
	assert.Error(t, err)
}

func TestChatter(t *testing.T) {
	gen := &scripted{text: " Happy to help! \n"}
	c := NewChatter(gen, once)
	st := japan()
	st.History = history(2)

	reply, err := c.Chat(context.Background(), st, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Happy to help!", reply)

	req := gen.last(t)
	assert.Equal(t, chatMaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 4)
	assert.Contains(t, req.Messages[0].Content, "--- DESTINATION CONTEXT ---")
	assert.Contains(t, req.Messages[0].Content, "destination=Japan")
	assert.Equal(t, "hello", req.Messages[3].Content)
}
