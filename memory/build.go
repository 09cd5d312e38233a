package memory

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sehgal-vip/travel-agent/state"
)

const insightsHeading = "## Cross-Agent Insights [auto-refreshed]"

// Build renders the handler's document for st without writing it. The bool
// is false when the handler has no memory document.
func (m *Manager) Build(ctx context.Context, conversationID, handlerName string, st *state.State) (string, bool, error) {
	if !Eligible(handlerName) {
		return "", false, nil
	}
	path, err := m.path(conversationID, handlerName)
	if err != nil {
		return "", false, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<!-- memory_format: %s -->\n", FormatVersion)
	fmt.Fprintf(&b, "# %s Memory — %s\n\n", title(handlerName), st.DisplayTitle())
	b.WriteString(renderSections(handlerName, st))

	insights, err := m.sharedInsights(ctx, conversationID, handlerName)
	if err != nil {
		return "", false, err
	}
	if insights != "" {
		b.WriteString("\n\n")
		b.WriteString(insights)
	}

	doc, _, err := m.readDocument(path)
	if err != nil {
		return "", false, err
	}
	if notes, ok := m.notesFrom(doc); ok {
		b.WriteString("\n\n")
		b.WriteString(NotesMarker)
		b.WriteString("\n")
		b.WriteString(notes)
	}
	return b.String(), true, nil
}

// Refresh rebuilds and persists the handler's document under one lock hold.
// It reports whether a write happened.
func (m *Manager) Refresh(ctx context.Context, conversationID, handlerName string, st *state.State) (bool, error) {
	if !Eligible(handlerName) {
		return false, nil
	}
	path, err := m.path(conversationID, handlerName)
	if err != nil {
		return false, err
	}

	lock := m.lockFor(conversationID, handlerName)
	lock.Lock()
	defer lock.Unlock()

	content, _, err := m.Build(ctx, conversationID, handlerName, st)
	if err != nil {
		return false, fmt.Errorf("build memory: %w", err)
	}
	return m.persistLocked(ctx, conversationID, handlerName, path, content)
}

// sharedInsights collects [shared] note lines from every other handler, in
// handler-name order, capped at maxShared.
func (m *Manager) sharedInsights(ctx context.Context, conversationID, exclude string) (string, error) {
	others := make([]string, 0, len(memoryHandlers))
	for _, h := range memoryHandlers {
		if h != exclude {
			others = append(others, h)
		}
	}

	found := make([][]string, len(others))
	g, _ := errgroup.WithContext(ctx)
	for i, h := range others {
		g.Go(func() error {
			notes, ok, err := m.ReadNotes(conversationID, h)
			if err != nil || !ok {
				return err
			}
			for _, line := range strings.Split(notes, "\n") {
				if strings.Contains(line, SharedTag) {
					found[i] = append(found[i], fmt.Sprintf("[%s] %s", h, line))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("read shared insights: %w", err)
	}

	var lines []string
	for _, f := range found {
		lines = append(lines, f...)
	}
	if len(lines) == 0 {
		return "", nil
	}
	if len(lines) > m.maxShared {
		lines = lines[:m.maxShared]
	}
	return insightsHeading + "\n" + strings.Join(lines, "\n"), nil
}
