package agents

import (
	"strings"

	"github.com/sehgal-vip/travel-agent/message"
	"github.com/sehgal-vip/travel-agent/state"
)

const (
	summaryHeading   = "## Conversation Summary (older messages)"
	summaryPrefix    = "[Prior conversation summary]\n"
	snippetLen       = 100
	maxUserSnippets  = 5
	maxAgentSnippets = 3
)

// snippet is the first sentence of text, capped at snippetLen runes.
func snippet(text string) string {
	first, _, _ := strings.Cut(text, ".")
	first = strings.TrimSpace(first)
	if r := []rune(first); len(r) > snippetLen {
		first = string(r[:snippetLen])
	}
	return first
}

// CompressHistory splits history into an extractive summary of everything
// but the last keep entries, and those entries verbatim. The summary is
// empty when nothing was dropped.
func CompressHistory(history []state.Entry, keep int) (string, []state.Entry) {
	if keep < 0 {
		keep = 0
	}
	if len(history) <= keep {
		return "", history
	}
	older, recent := history[:len(history)-keep], history[len(history)-keep:]

	var order []string
	groups := make(map[string][]string)
	for _, e := range older {
		key := e.Role
		if e.Role != string(message.RoleUser) && e.Handler != "" {
			key = e.Handler
		}
		s := snippet(e.Text)
		if s == "" {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}
	if len(order) == 0 {
		return "", recent
	}

	lines := []string{summaryHeading}
	for _, key := range order {
		items := groups[key]
		if key == string(message.RoleUser) {
			lines = append(lines, "- User discussed: "+strings.Join(first(items, maxUserSnippets), "; "))
			continue
		}
		lines = append(lines, "- "+key+" covered: "+strings.Join(first(items, maxAgentSnippets), "; "))
	}
	return strings.Join(lines, "\n"), recent
}

func first(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// HistoryMessages converts history into generation messages, summarizing
// all but the last keep entries.
func HistoryMessages(history []state.Entry, keep int) []*message.Message {
	summary, recent := CompressHistory(history, keep)
	msgs := make([]*message.Message, 0, len(recent)+1)
	if summary != "" {
		msgs = append(msgs, message.User(summaryPrefix+summary))
	}
	for _, e := range recent {
		switch message.Role(e.Role) {
		case message.RoleUser:
			msgs = append(msgs, message.User(e.Text))
		case message.RoleAssistant:
			msgs = append(msgs, message.Assistant(e.Text))
		}
	}
	return msgs
}
