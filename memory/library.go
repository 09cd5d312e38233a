package memory

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sehgal-vip/travel-agent/pkg/telemetry"
	"github.com/sehgal-vip/travel-agent/state"
)

// LibraryDir is the per-conversation directory holding the synced trip
// library:
//
//	library/INDEX.md
//	library/destination-guide.md
//	library/priorities.md
//	library/itinerary.md
//	library/budget.md
//	library/cities/<slug>/{overview,places,food,activities,logistics,hidden-gems}.md
//	library/feedback/day-<n>.md
const LibraryDir = "library"

const autoTag = " [auto-refreshed]"

// CityCount is the number of researched items of one city.
type CityCount struct {
	City  string
	Items int
}

// LibraryReport summarizes one library sync.
type LibraryReport struct {
	Path     string
	Pages    int
	Written  []string
	Cities   []CityCount
	SyncedAt time.Time
}

// Items is the total number of researched items across cities.
func (r LibraryReport) Items() int {
	n := 0
	for _, c := range r.Cities {
		n += c.Items
	}
	return n
}

// Summary renders the report as a chat reply.
func (r LibraryReport) Summary() string {
	lines := []string{
		"📚 Library Sync — " + r.Path,
		fmt.Sprintf("Pages: %d (%d updated)", r.Pages, len(r.Written)),
	}
	for _, c := range r.Cities {
		lines = append(lines, fmt.Sprintf("- %s: %d items", c.City, c.Items))
	}
	lines = append(lines, fmt.Sprintf("Total items: %d", r.Items()))
	return strings.Join(lines, "\n")
}

type page struct {
	path    string
	content string
}

// SyncLibrary renders the trip as a set of markdown pages under the
// conversation's library directory. Pages whose content is unchanged are
// not rewritten.
func (m *Manager) SyncLibrary(ctx context.Context, st *state.State) (report LibraryReport, err error) {
	dir, err := m.convDir(st.ConversationID)
	if err != nil {
		return report, err
	}
	root := filepath.Join(dir, LibraryDir)
	lock := m.lockFor(st.ConversationID, LibraryDir)
	lock.Lock()
	defer lock.Unlock()

	_, span := m.tracer.Start(ctx, "memory.library_sync", trace.WithAttributes(
		telemetry.Conversation(st.ConversationID),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("library.pages", report.Pages),
			attribute.Int("library.written", len(report.Written)),
		)
		telemetry.End(span, err)
	}()

	pages := libraryPages(st)
	report = LibraryReport{
		Path:     root,
		Pages:    len(pages),
		Cities:   cityCounts(&st.Domain),
		SyncedAt: m.now().UTC(),
	}
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		target := filepath.Join(root, filepath.FromSlash(p.path))
		same, err := sameContent(target, p.content)
		if err != nil {
			return report, err
		}
		if same {
			continue
		}
		if err := atomicWrite(target, []byte(p.content)); err != nil {
			return report, err
		}
		report.Written = append(report.Written, p.path)
	}

	m.logger.InfoContext(ctx, "library synced",
		"conversation_id", st.ConversationID,
		"path", root,
		"pages", report.Pages,
		"written", len(report.Written),
		"items", report.Items(),
	)
	return report, nil
}

func libraryPages(st *state.State) []page {
	d := &st.Domain
	name := st.DisplayTitle()
	var pages []page
	add := func(p, heading string, sections ...string) {
		var parts []string
		for _, s := range sections {
			if s != "" {
				parts = append(parts, strings.ReplaceAll(s, autoTag, ""))
			}
		}
		if len(parts) == 0 {
			return
		}
		pages = append(pages, page{p, "# " + heading + "\n\n" + strings.Join(parts, "\n\n") + "\n"})
	}

	add("destination-guide.md", "Destination Guide — "+name,
		destinationIntel(st), practicalInfo(st), pricingBenchmarks(st))
	add("priorities.md", "Priorities — "+name, priorityLists(d))
	add("itinerary.md", "Itinerary — "+name, itinerary(st), agendaDetail(d), bookingDeadlines(st))
	add("budget.md", "Budget — "+name,
		budgetTargets(d), costOverview(st), spendingByCategory(st), spendingByCity(st), savingsTips(st))

	for _, city := range researchedCities(d) {
		pages = append(pages, cityPages(city, d)...)
	}
	for _, e := range d.FeedbackLog {
		add(fmt.Sprintf("feedback/day-%d.md", e.Day), fmt.Sprintf("Day %d Feedback", e.Day), feedbackPage(e))
	}

	return append([]page{{"INDEX.md", libraryIndex(name, pages)}}, pages...)
}

func libraryIndex(name string, pages []page) string {
	lines := []string{"# " + name + " — Trip Library", ""}
	var cities, feedback []string
	for _, p := range pages {
		heading, _, _ := strings.Cut(strings.TrimPrefix(p.content, "# "), "\n")
		link := fmt.Sprintf("- [%s](%s)", heading, p.path)
		switch {
		case strings.HasPrefix(p.path, "cities/"):
			if path.Base(p.path) == "overview.md" {
				cities = append(cities, link)
			}
		case strings.HasPrefix(p.path, "feedback/"):
			feedback = append(feedback, link)
		default:
			lines = append(lines, link)
		}
	}
	if len(lines) == 2 && len(cities) == 0 && len(feedback) == 0 {
		lines = append(lines, "Nothing planned yet.")
	}
	if len(cities) > 0 {
		lines = append(lines, "", "## Cities")
		lines = append(lines, cities...)
	}
	if len(feedback) > 0 {
		lines = append(lines, "", "## Feedback")
		lines = append(lines, feedback...)
	}
	return strings.Join(lines, "\n") + "\n"
}

// researchedCities lists researched cities in route order, then any others
// alphabetically.
func researchedCities(d *state.Domain) []string {
	var out []string
	seen := make(map[string]bool, len(d.Research))
	for _, c := range d.Cities {
		if _, ok := d.Research[c.Name]; ok && !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c.Name)
		}
	}
	for _, name := range state.SortedKeys(d.Research) {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

func cityCounts(d *state.Domain) []CityCount {
	cities := researchedCities(d)
	out := make([]CityCount, 0, len(cities))
	for _, c := range cities {
		out = append(out, CityCount{City: c, Items: d.Research[c].Total()})
	}
	return out
}

// slug lowercases a city name for use as a directory.
func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "-", "'", "", "’", "", "/", "-", `\`, "-").Replace(s)
	if !validSegment(s) {
		return "city"
	}
	return s
}

func tierIcons(items []state.PrioritizedItem) map[string]string {
	icons := make(map[string]string, len(items))
	for _, it := range items {
		for _, t := range tierOrder {
			if t.key != it.Tier {
				continue
			}
			if it.ItemID != "" {
				icons[it.ItemID] = t.icon
			}
			icons[it.Name] = t.icon
		}
	}
	return icons
}

func cityPages(city string, d *state.Domain) []page {
	r := d.Research[city]
	icons := tierIcons(d.Priorities[city])
	dir := "cities/" + slug(city) + "/"
	categories := []struct {
		file, label string
		items       []state.ResearchItem
	}{
		{"places.md", "Places", r.Places},
		{"food.md", "Food", r.Food},
		{"activities.md", "Activities", r.Activities},
		{"logistics.md", "Logistics & Tips", append(append([]state.ResearchItem(nil), r.Logistics...), r.Tips...)},
		{"hidden-gems.md", "Hidden Gems", r.HiddenGems},
	}

	overview := []string{"# " + city, ""}
	for _, c := range d.Cities {
		if c.Name == city && c.Days > 0 {
			overview = append(overview, fmt.Sprintf("Days: %d", c.Days))
		}
	}
	if updated, _, _ := strings.Cut(r.LastUpdated, "T"); updated != "" {
		overview = append(overview, "Researched: "+updated)
	}
	overview = append(overview, fmt.Sprintf("Items: %d", r.Total()), "")

	var pages []page
	for _, c := range categories {
		if len(c.items) == 0 {
			continue
		}
		lines := []string{fmt.Sprintf("# %s — %s", city, c.label), ""}
		for _, it := range c.items {
			lines = append(lines, itemLine(it, icons))
		}
		pages = append(pages, page{dir + c.file, strings.Join(lines, "\n") + "\n"})
		overview = append(overview, fmt.Sprintf("- [%s](%s) (%d)", c.label, c.file, len(c.items)))
	}
	return append([]page{{dir + "overview.md", strings.Join(overview, "\n") + "\n"}}, pages...)
}

func itemLine(it state.ResearchItem, icons map[string]string) string {
	icon, ok := icons[it.ID]
	if !ok || it.ID == "" {
		icon = icons[it.Name]
	}
	line := "- "
	if icon != "" {
		line += icon + " "
	}
	line += "**" + orQ(it.Name) + "**"
	if it.Description != "" {
		line += ": " + it.Description
	}
	var extra []string
	if it.CostUSD != nil {
		extra = append(extra, "~"+usd(*it.CostUSD))
	}
	if it.AdvanceBooking {
		lead := it.BookingLeadTime
		if lead == "" {
			lead = "in advance"
		}
		extra = append(extra, "book "+lead)
	}
	if len(it.Tags) > 0 {
		extra = append(extra, strings.Join(it.Tags, ", "))
	}
	if len(extra) > 0 {
		line += " (" + strings.Join(extra, " · ") + ")"
	}
	return line
}

func priorityLists(d *state.Domain) string {
	if len(d.Priorities) == 0 {
		return ""
	}
	var lines []string
	for _, city := range state.SortedKeys(d.Priorities) {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "## "+city)
		for _, t := range tierOrder {
			var items []string
			for _, it := range d.Priorities[city] {
				if it.Tier != t.key {
					continue
				}
				entry := "- " + orQ(it.Name)
				if it.Score > 0 {
					entry += " (" + strconv.Itoa(it.Score) + ")"
				}
				items = append(items, entry)
			}
			if len(items) == 0 {
				continue
			}
			lines = append(lines, "", fmt.Sprintf("### %s %s", t.icon, t.label))
			lines = append(lines, items...)
		}
	}
	return strings.Join(lines, "\n")
}

func agendaDetail(d *state.Domain) string {
	if len(d.Agenda) == 0 {
		return ""
	}
	lines := []string{"## Daily Agenda"}
	for _, day := range d.Agenda {
		lines = append(lines, "", fmt.Sprintf("### Day %d — %s %s", day.Day, orQ(day.City), day.Date))
		for _, s := range day.Slots {
			lines = append(lines, fmt.Sprintf("- %s %s", orQ(s.Time), orQ(s.Title)))
		}
	}
	return strings.Join(lines, "\n")
}

func budgetTargets(d *state.Domain) string {
	b := d.Budget
	if b == nil || (b.Style == "" && b.TotalEstimateUSD == 0 && b.DailyTargetUSD == 0) {
		return ""
	}
	lines := []string{"## Targets"}
	if b.Style != "" {
		lines = append(lines, "Style: "+title(b.Style))
	}
	if b.TotalEstimateUSD > 0 {
		lines = append(lines, "Total estimate: "+usd(b.TotalEstimateUSD))
	}
	if b.DailyTargetUSD > 0 {
		lines = append(lines, "Daily target: "+usd(b.DailyTargetUSD)+"/day")
	}
	return strings.Join(lines, "\n")
}

func feedbackPage(e state.FeedbackEntry) string {
	var lines []string
	if e.Highlight != "" {
		lines = append(lines, "Highlight: "+e.Highlight)
	}
	if e.EnergyLevel != "" {
		lines = append(lines, "Energy: "+e.EnergyLevel)
	}
	for _, s := range e.Discoveries {
		lines = append(lines, "- Discovered: "+s)
	}
	for _, s := range e.AdjustmentsMade {
		lines = append(lines, "- Adjusted: "+s)
	}
	if len(lines) == 0 {
		return "No notes recorded."
	}
	return strings.Join(lines, "\n")
}
