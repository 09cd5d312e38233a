package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/sehgal-vip/travel-agent/llm"
	"github.com/sehgal-vip/travel-agent/memory"
	"github.com/sehgal-vip/travel-agent/message"
	"github.com/sehgal-vip/travel-agent/prompt"
	"github.com/sehgal-vip/travel-agent/state"
)

const (
	notesMaxTokens = 300
	maxNoteLines   = 3
	noNotes        = "NONE"
)

// Notetaker distills a handler exchange into memory note bullets.
type Notetaker struct {
	gen   llm.Generator
	retry llm.Retry
}

// NewNotetaker creates a notetaker.
func NewNotetaker(gen llm.Generator, retry llm.Retry) *Notetaker {
	return &Notetaker{gen: gen, retry: retry}
}

func notesPrompt(handlerName string) string {
	return prompt.NewBuilder().
		AddFormat("You keep working notes for the %s agent of a travel assistant.", handlerName).
		AddFormat("Write at most %d short bullet lines starting with \"- \" capturing what is worth remembering from the exchange: traveler preferences, decisions, open questions.", maxNoteLines).
		AddFormat("Prefix a bullet with %s if it should survive until the trip ends, or with %s if other agents need it.", memory.PinnedTag, memory.SharedTag).
		AddFormat("If nothing is worth keeping, reply %s.", noNotes).
		Build()
}

// Notes returns note bullets, or "" when the exchange has nothing worth
// keeping.
func (n *Notetaker) Notes(ctx context.Context, st *state.State, handlerName, userMsg, reply string) (string, error) {
	exchange := fmt.Sprintf("Traveler: %s\n\n%s agent: %s", userMsg, handlerName, reply)
	req := llm.Request{
		Messages:  []*message.Message{message.System(notesPrompt(handlerName)), message.User(exchange)},
		MaxTokens: notesMaxTokens,
	}
	text, err := n.retry.Generate(ctx, n.gen, req)
	if err != nil {
		return "", fmt.Errorf("notes for %s: %w", handlerName, err)
	}
	return cleanNotes(text), nil
}

// cleanNotes keeps the bullet lines of text.
func cleanNotes(text string) string {
	if strings.EqualFold(strings.TrimSpace(text), noNotes) {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") || strings.TrimSpace(line[2:]) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == maxNoteLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}
