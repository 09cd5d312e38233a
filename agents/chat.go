package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/sehgal-vip/travel-agent/llm"
	"github.com/sehgal-vip/travel-agent/message"
	"github.com/sehgal-vip/travel-agent/prompt"
	"github.com/sehgal-vip/travel-agent/router"
	"github.com/sehgal-vip/travel-agent/state"
)

const chatMaxTokens = 1024

// Chatter answers messages no specialist owns.
type Chatter struct {
	gen   llm.Generator
	retry llm.Retry
}

var _ router.Chatter = (*Chatter)(nil)

// NewChatter creates a general-chat responder.
func NewChatter(gen llm.Generator, retry llm.Retry) *Chatter {
	return &Chatter{gen: gen, retry: retry}
}

// Chat implements router.Chatter.
func (c *Chatter) Chat(ctx context.Context, st *state.State, msg string) (string, error) {
	system := prompt.NewBuilder().
		Add(Tone).
		Add("Answer general questions about the trip. Point the traveler to /help for commands when they seem unsure what to do next.").
		AddSection("Trip state", st.Domain.Summary()).
		AddBlock("DESTINATION CONTEXT", DestinationContext(&st.Domain)).
		Build()

	history := HistoryMessages(st.History, KeepRecent)
	msgs := make([]*message.Message, 0, len(history)+2)
	msgs = append(msgs, message.System(system))
	msgs = append(msgs, history...)
	msgs = append(msgs, message.User(msg))

	text, err := c.retry.Generate(ctx, c.gen, llm.Request{Messages: msgs, MaxTokens: chatMaxTokens})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return strings.TrimSpace(text), nil
}
