package memory

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/sehgal-vip/travel-agent/state"
)

const truncatedMark = "\n...[truncated]...\n\n"

// Unlimited is the budget that disables truncation.
const Unlimited = math.MaxInt

// Inject builds the handler's document for a prompt and fits it into
// budget tokens. The notes block is kept whole where possible; the
// programmatic sections are cut line by line. A budget of zero or less
// injects nothing. Non-eligible handlers get "".
func (m *Manager) Inject(ctx context.Context, conversationID, handlerName string, st *state.State, budget int) (string, error) {
	content, ok, err := m.Build(ctx, conversationID, handlerName, st)
	if err != nil || !ok {
		return "", err
	}
	return m.truncate(content, budget), nil
}

func (m *Manager) truncate(content string, budget int) string {
	if budget == Unlimited {
		return content
	}
	if budget <= 0 {
		m.logger.Warn("no token budget left for memory, skipping", "budget", budget)
		return ""
	}
	tokens := m.counter.CountTokens(content)
	if tokens <= budget {
		return content
	}
	m.logger.Warn("memory exceeds token budget, truncating", "tokens", tokens, "budget", budget)

	body, notes := content, ""
	if i := strings.Index(content, NotesMarker); i >= 0 {
		body, notes = content[:i], content[i:]
	}
	lines := strings.SplitAfter(body, "\n")

	if notes == "" {
		if out, ok := m.fit(lines, strings.TrimRight(truncatedMark, "\n"), budget); ok {
			return out
		}
		out, _ := m.fit(lines, "", budget)
		return out
	}
	if out, ok := m.fit(lines, truncatedMark+notes, budget); ok {
		return out
	}
	out, _ := m.fit(strings.SplitAfter(notes, "\n"), "", budget)
	return out
}

// fit returns the longest run of leading lines, followed by suffix, that
// stays within budget. ok is false when not even one line fits.
func (m *Manager) fit(lines []string, suffix string, budget int) (string, bool) {
	render := func(n int) string {
		return strings.TrimRight(strings.Join(lines[:n], ""), "\n") + suffix
	}
	n := sort.Search(len(lines)+1, func(n int) bool {
		return m.counter.CountTokens(render(n)) > budget
	}) - 1
	if n < 1 {
		return "", false
	}
	return render(n), true
}
