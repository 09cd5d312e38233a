package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/llm"
	"github.com/sehgal-vip/travel-agent/message"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/prompt"
	"github.com/sehgal-vip/travel-agent/router"
)

const classifierMaxTokens = 100

// Classifier asks a text generator which specialist owns a message.
type Classifier struct {
	gen    llm.Generator
	retry  llm.Retry
	specs  []Spec
	logger *slog.Logger
}

var _ router.Classifier = (*Classifier)(nil)

// NewClassifier creates a classifier over the given specialists.
func NewClassifier(gen llm.Generator, retry llm.Retry, specs []Spec) *Classifier {
	return &Classifier{
		gen:    gen,
		retry:  retry,
		specs:  specs,
		logger: logging.WithComponent("classifier"),
	}
}

func (c *Classifier) systemPrompt(summary string) string {
	lines := make([]string, 0, len(c.specs)+1)
	for _, s := range c.specs {
		lines = append(lines, fmt.Sprintf("- %s: %s", s.Name, s.Description))
	}
	lines = append(lines, fmt.Sprintf("- %s: general chat, greetings, questions no other agent owns", handler.Orchestrator))

	return prompt.NewBuilder().
		Add("Classify the traveler's message to the agent that should handle it.").
		AddSection("Agents", strings.Join(lines, "\n")).
		AddSection("Trip state", summary).
		Add(`Respond with ONLY the agent name, or with JSON {"target": "<agent>", "echo": "<one short line telling the traveler what happens next>"}.`).
		Build()
}

// Classify implements router.Classifier. Replies naming no known specialist
// classify as general chat.
func (c *Classifier) Classify(ctx context.Context, summary, msg string) (router.Classification, error) {
	req := llm.Request{
		Messages:  []*message.Message{message.System(c.systemPrompt(summary)), message.User(msg)},
		MaxTokens: classifierMaxTokens,
	}
	text, err := c.retry.Generate(ctx, c.gen, req)
	if err != nil {
		return router.Classification{}, fmt.Errorf("classify: %w", err)
	}

	var out struct {
		Target string `json:"target"`
		Echo   string `json:"echo"`
	}
	if handler.ParseJSON(text, &out) != nil {
		out.Target, out.Echo = bareName(text), ""
	}
	target := strings.ToLower(strings.TrimSpace(out.Target))
	if !c.known(target) {
		c.logger.Debug("classifier returned unknown agent", "reply", text)
		return router.Classification{Target: handler.Orchestrator}, nil
	}
	return router.Classification{Target: target, Echo: strings.TrimSpace(out.Echo)}, nil
}

func (c *Classifier) known(name string) bool {
	for _, s := range c.specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

// bareName takes the first word of text without surrounding punctuation.
func bareName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], "`'\".,:;!*")
}
