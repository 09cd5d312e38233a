package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), append([]Option{WithLogger(logging.Discard())}, opts...)...)
}

func tripState() *state.State {
	st := state.New("trip-1")
	st.Domain = state.Domain{
		OnboardingComplete: true,
		Destination: &state.Destination{
			Country: "Japan", FlagEmoji: "🇯🇵", CurrencyCode: "JPY", CurrencySymbol: "¥",
			ExchangeRateToUSD: 150,
		},
		Dates:     &state.Dates{Start: "2025-04-01", End: "2025-04-10", TotalDays: 10},
		Cities:    []state.City{{Name: "Tokyo", Days: 4}, {Name: "Kyoto", Days: 3}},
		Travelers: &state.Travelers{Count: 2, Type: "couple"},
		Interests: []string{"food", "temples"},
		Research: map[string]state.CityResearch{
			"Tokyo": {
				LastUpdated: "2025-03-01T10:00:00Z",
				Food:        []state.ResearchItem{{Name: "Sushi Dai"}, {Name: "Afuri"}},
				Places:      []state.ResearchItem{{Name: "Senso-ji", AdvanceBooking: true, BookingLeadTime: "2 weeks"}},
			},
		},
	}
	return st
}

func docPath(m *Manager, conv, h string) string {
	return filepath.Join(m.BaseDir(), conv, h+".md")
}

func TestEligibility(t *testing.T) {
	assert.True(t, Eligible(handler.Research))
	assert.True(t, Eligible(handler.Cost))
	assert.False(t, Eligible(handler.Onboarding))
	assert.False(t, Eligible(handler.Librarian))
	assert.True(t, NotesEligible(handler.Feedback))
	assert.False(t, NotesEligible(handler.Cost))
	for _, h := range []string{handler.Research, handler.Planner, handler.Feedback} {
		assert.True(t, Eligible(h), "notes-eligible handlers must own a document")
	}
}

func TestBuildNotEligible(t *testing.T) {
	m := newTestManager(t)
	content, ok, err := m.Build(context.Background(), "trip-1", handler.Onboarding, tripState())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, content)
}

func TestBuildResearchDocument(t *testing.T) {
	m := newTestManager(t)
	content, ok, err := m.Build(context.Background(), "trip-1", handler.Research, tripState())
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, strings.HasPrefix(content, "<!-- memory_format: 1 -->\n# Research Memory — Japan Trip\n\n## Trip Context [auto-refreshed]"))
	assert.Contains(t, content, "Destination: 🇯🇵 Japan | Dates: 2025-04-01 to 2025-04-10 (10 days) | Travelers: couple, 2")
	assert.Contains(t, content, "Route: Tokyo (4d) → Kyoto (3d)")
	assert.Contains(t, content, "| Tokyo | ✅ | 3 items | 2025-03-01 |")
	assert.Contains(t, content, "| Kyoto | ⏳ | — | — |")
	assert.Contains(t, content, "### Tokyo (4 days)")
	assert.NotContains(t, content, "Destination Intel", "intel needs a researched_at stamp")
	assert.NotContains(t, content, NotesMarker)
}

func TestBuildIsDeterministic(t *testing.T) {
	m := newTestManager(t)
	st := tripState()
	st.Domain.Costs = &state.CostTracker{
		Totals:     &state.CostTotals{SpentUSD: 1520},
		ByCategory: map[string]state.Spend{"food": {SpentUSD: 300}, "activities": {SpentUSD: 120}, "transport": {SpentUSD: 1100}},
	}
	first, _, err := m.Build(context.Background(), "trip-1", handler.Cost, st)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, _, err := m.Build(context.Background(), "trip-1", handler.Cost, st)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	assert.Contains(t, first, "## Spending by Category [auto-refreshed]\n- Activities: $120\n- Food: $300\n- Transport: $1,100")
	assert.Contains(t, first, "| Spent | $1,520 |")
	assert.Contains(t, first, "Currency: JPY (¥) · 1 USD = 150")
}

func TestPersistIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	written, err := m.Persist(ctx, "trip-1", handler.Planner, "hello")
	require.NoError(t, err)
	assert.True(t, written)

	path := docPath(m, "trip-1", handler.Planner)
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))

	written, err = m.Persist(ctx, "trip-1", handler.Planner, "hello")
	require.NoError(t, err)
	assert.False(t, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "second persist must not touch the file")

	written, err = m.Persist(ctx, "trip-1", handler.Planner, "hello again")
	require.NoError(t, err)
	assert.True(t, written)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestRefreshRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	st := tripState()

	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Research, "- user loves ramen\n- [pinned] vegetarian partner"))
	written, err := m.Refresh(ctx, "trip-1", handler.Research, st)
	require.NoError(t, err)
	assert.True(t, written)

	first, err := os.ReadFile(docPath(m, "trip-1", handler.Research))
	require.NoError(t, err)
	notesBefore, ok, err := m.ReadNotes("trip-1", handler.Research)
	require.NoError(t, err)
	require.True(t, ok)

	written, err = m.Refresh(ctx, "trip-1", handler.Research, st)
	require.NoError(t, err)
	assert.False(t, written)

	second, err := os.ReadFile(docPath(m, "trip-1", handler.Research))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	notesAfter, _, err := m.ReadNotes("trip-1", handler.Research)
	require.NoError(t, err)
	assert.Equal(t, notesBefore, notesAfter)
	assert.Equal(t, "- [pinned] vegetarian partner\n- user loves ramen", notesAfter)
}

func TestRefreshRegeneratesSections(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	st := tripState()

	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Research, "- keep me"))
	_, err := m.Refresh(ctx, "trip-1", handler.Research, st)
	require.NoError(t, err)

	st.Domain.Research["Kyoto"] = state.CityResearch{Food: []state.ResearchItem{{Name: "Yudofu"}}}
	written, err := m.Refresh(ctx, "trip-1", handler.Research, st)
	require.NoError(t, err)
	assert.True(t, written)

	doc, err := os.ReadFile(docPath(m, "trip-1", handler.Research))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "| Kyoto | ✅ | 1 items |")
	assert.True(t, strings.HasSuffix(string(doc), NotesMarker+"\n- keep me"))
}

func TestAppendNotesOrder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Feedback, "- note A"))
	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Feedback, "- note B"))

	notes, ok, err := m.ReadNotes("trip-1", handler.Feedback)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "- note A\n- note B", notes)
}

func TestAppendNotesSanitizesMarkers(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Planner, NotesMarker+"\n- real note\n"+LegacyNotesMarker))
	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Planner, NotesMarker))

	doc, err := os.ReadFile(docPath(m, "trip-1", handler.Planner))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(doc), LegacyNotesMarker))
	notes, _, err := m.ReadNotes("trip-1", handler.Planner)
	require.NoError(t, err)
	assert.Equal(t, "- real note", notes)
}

func TestAppendNotesAddsMarkerToExistingDocument(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Refresh(ctx, "trip-1", handler.Planner, tripState())
	require.NoError(t, err)
	_, ok, err := m.ReadNotes("trip-1", handler.Planner)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Planner, "- first"))
	doc, err := os.ReadFile(docPath(m, "trip-1", handler.Planner))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "## Trip Context [auto-refreshed]")
	assert.True(t, strings.HasSuffix(string(doc), "\n\n"+NotesMarker+"\n- first"))
}

func TestNotesCapsAreIndependent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Research, fmt.Sprintf("- [pinned] p%d", i)))
	}
	for i := 1; i <= 30; i++ {
		require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Research, fmt.Sprintf("- e%d", i)))
	}

	notes, ok, err := m.ReadNotes("trip-1", handler.Research)
	require.NoError(t, err)
	require.True(t, ok)
	lines := strings.Split(notes, "\n")
	require.Len(t, lines, DefaultMaxPinned+DefaultMaxEphemeral)
	assert.Equal(t, "- [pinned] p3", lines[0])
	assert.Equal(t, "- [pinned] p12", lines[DefaultMaxPinned-1])
	assert.Equal(t, "- e6", lines[DefaultMaxPinned])
	assert.Equal(t, "- e30", lines[len(lines)-1])
}

func TestReadNotesLegacyMarker(t *testing.T) {
	m := newTestManager(t)
	path := docPath(m, "trip-1", handler.Feedback)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("# Old\n\n"+LegacyNotesMarker+"\n- legacy note\n"), 0o644))

	notes, ok, err := m.ReadNotes("trip-1", handler.Feedback)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "- legacy note", notes)
}

func TestReadNotesMissing(t *testing.T) {
	m := newTestManager(t)
	notes, ok, err := m.ReadNotes("trip-1", handler.Research)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, notes)
}

func TestSharedInsights(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Planner, "- [shared] traveler hates early starts\n- private planner note"))
	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Feedback, "- [shared] [pinned] knee injury, avoid stairs"))
	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Research, "- [shared] own note stays out"))

	content, _, err := m.Build(ctx, "trip-1", handler.Research, tripState())
	require.NoError(t, err)

	want := insightsHeading + "\n" +
		"[feedback] - [shared] [pinned] knee injury, avoid stairs\n" +
		"[planner] - [shared] traveler hates early starts"
	assert.Contains(t, content, want)
	assert.NotContains(t, content, "private planner note")
	assert.NotContains(t, content, "[research] ")
}

func TestSharedInsightsCapped(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Cost, fmt.Sprintf("- [shared] tip %d", i)))
	}
	content, _, err := m.Build(ctx, "trip-1", handler.Scheduler, tripState())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxShared, strings.Count(content, "[cost] "))
}

func TestRetirePrunesFilesAndLocks(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Refresh(ctx, "trip-1", handler.Research, tripState())
	require.NoError(t, err)
	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Planner, "- x"))
	_, err = m.Refresh(ctx, "trip-2", handler.Research, tripState())
	require.NoError(t, err)
	require.Equal(t, 3, m.lockCount())

	require.NoError(t, m.Retire(ctx, "trip-1"))
	_, err = os.Stat(filepath.Join(m.BaseDir(), "trip-1"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, m.lockCount())

	require.NoError(t, m.Retire(ctx, "never-existed"))
}

func TestStats(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Refresh(ctx, "trip-1", handler.Research, tripState())
	require.NoError(t, err)
	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Feedback, "- note"))

	stats, err := m.Stats("trip-1")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.False(t, stats[handler.Research].HasNotes)
	assert.True(t, stats[handler.Feedback].HasNotes)
	assert.Greater(t, stats[handler.Research].SizeBytes, 0)
	assert.Greater(t, stats[handler.Research].EstimatedTokens, 0)
}

func TestCleanupStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := m.Persist(ctx, "old", handler.Cost, "old")
	require.NoError(t, err)
	_, err = m.Persist(ctx, "fresh", handler.Cost, "fresh")
	require.NoError(t, err)

	stale := now.Add(-100 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(docPath(m, "old", handler.Cost), stale, stale))
	recent := now.Add(-time.Hour)
	require.NoError(t, os.Chtimes(docPath(m, "fresh", handler.Cost), recent, recent))

	cleaned, err := m.CleanupStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, cleaned)

	_, err = os.Stat(filepath.Join(m.BaseDir(), "fresh"))
	assert.NoError(t, err)
}

func TestStaleCandidatesOnlyLists(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	stale := now.Add(-100 * 24 * time.Hour)

	_, err := m.Persist(ctx, "old", handler.Cost, "old")
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(docPath(m, "old", handler.Cost), stale, stale))

	page := filepath.Join(m.BaseDir(), "shelf", LibraryDir, "INDEX.md")
	require.NoError(t, atomicWrite(page, []byte("# Trip Library\n")))
	require.NoError(t, os.Chtimes(page, stale, stale))

	_, err = m.Persist(ctx, "fresh", handler.Cost, "fresh")
	require.NoError(t, err)

	candidates, err := m.StaleCandidates(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "shelf"}, candidates)

	for _, id := range []string{"old", "shelf", "fresh"} {
		_, err := os.Stat(filepath.Join(m.BaseDir(), id))
		assert.NoError(t, err, id)
	}
}

func TestCleanupStaleMissingBaseDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"), WithLogger(logging.Discard()))
	cleaned, err := m.CleanupStale(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, cleaned)
}

func TestInjectKeepsNotesWhenTruncating(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	st := tripState()
	for i := 0; i < 40; i++ {
		st.Domain.Cities = append(st.Domain.Cities, state.City{Name: fmt.Sprintf("Town-%02d", i), Days: 1})
	}
	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Research, "- [pinned] must keep this"))

	full, _, err := m.Build(ctx, "trip-1", handler.Research, st)
	require.NoError(t, err)
	budget := estimateCounter{}.CountTokens(full) / 2

	out, err := m.Inject(ctx, "trip-1", handler.Research, st, budget)
	require.NoError(t, err)
	assert.LessOrEqual(t, estimateCounter{}.CountTokens(out), budget)
	assert.Contains(t, out, "...[truncated]...")
	assert.True(t, strings.HasSuffix(out, NotesMarker+"\n- [pinned] must keep this"))
	assert.True(t, strings.HasPrefix(out, "<!-- memory_format: 1 -->"))

	untouched, err := m.Inject(ctx, "trip-1", handler.Research, st, Unlimited)
	require.NoError(t, err)
	assert.Equal(t, full, untouched)

	none, err := m.Inject(ctx, "trip-1", handler.Onboarding, st, 100)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInjectWithSpentBudget(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	st := tripState()
	require.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Research, "- [pinned] must keep this"))

	for _, budget := range []int{0, -1, -100} {
		out, err := m.Inject(ctx, "trip-1", handler.Research, st, budget)
		require.NoError(t, err)
		assert.Empty(t, out, "budget %d", budget)
	}

	// Once the sections are cut entirely, the notes block still fits.
	notesOnly := estimateCounter{}.CountTokens(NotesMarker + "\n- [pinned] must keep this")
	out, err := m.Inject(ctx, "trip-1", handler.Research, st, notesOnly)
	require.NoError(t, err)
	assert.LessOrEqual(t, estimateCounter{}.CountTokens(out), notesOnly)
	assert.Contains(t, out, "must keep this")
}

func TestInvalidKeys(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Persist(ctx, "../escape", handler.Research, "x")
	assert.ErrorIs(t, err, errorskg.ErrInvalidInput)
	_, err = m.Persist(ctx, "trip-1", handler.Onboarding, "x")
	assert.ErrorIs(t, err, errorskg.ErrNotEligible)
	err = m.AppendNotes(ctx, "trip-1", handler.Librarian, "- x")
	assert.ErrorIs(t, err, errorskg.ErrNotEligible)
	assert.ErrorIs(t, m.Retire(ctx, ""), errorskg.ErrInvalidInput)
}

func TestConcurrentWritersDoNotLoseNotes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	st := tripState()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.AppendNotes(ctx, "trip-1", handler.Research, fmt.Sprintf("- note %02d", i)))
		}()
		go func() {
			defer wg.Done()
			_, err := m.Refresh(ctx, "trip-1", handler.Research, st)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	notes, ok, err := m.ReadNotes("trip-1", handler.Research)
	require.NoError(t, err)
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		assert.Contains(t, notes, fmt.Sprintf("- note %02d", i))
	}
}
