package memory

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/state"
)

// section renders one block of a document from state. An empty string
// means the block is omitted.
type section func(st *state.State) string

// contextFields selects the optional lines of the trip context block.
type contextFields uint8

const (
	fieldInterests contextFields = 1 << iota
	fieldMustDos
	fieldBudget
	fieldCurrency

	slimFields     = fieldInterests
	extendedFields = slimFields | fieldMustDos | fieldBudget
	costFields     = extendedFields | fieldCurrency
)

const recentFeedbackEntries = 3

var builders = map[string][]section{
	handler.Research: {
		tripContext(slimFields), destinationIntel, researchProgress, researchFindings,
	},
	handler.Planner: {
		tripContext(extendedFields), prioritiesSummary, foodHighlights, itinerary,
	},
	handler.Scheduler: {
		tripContext(slimFields), itinerary, practicalInfo, bookingDeadlines, recentFeedback,
	},
	handler.Prioritizer: {
		tripContext(extendedFields), researchProgress, researchFindings,
	},
	handler.Feedback: {
		tripContext(slimFields), todaysPlan, feedbackHistory,
	},
	handler.Cost: {
		tripContext(costFields), costOverview, spendingByCategory, spendingByCity, pricingBenchmarks, savingsTips,
	},
}

func renderSections(handlerName string, st *state.State) string {
	var parts []string
	for _, build := range builders[handlerName] {
		if s := build(st); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func orQ(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func intOrQ(n int) string {
	if n == 0 {
		return "?"
	}
	return strconv.Itoa(n)
}

func title(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	for i := 1; i < len(r); i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

// usd formats a whole-dollar amount with thousands separators.
func usd(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatFloat(amount, 'f', 0, 64)
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

func route(cities []state.City) string {
	parts := make([]string, 0, len(cities))
	for _, c := range cities {
		parts = append(parts, fmt.Sprintf("%s (%sd)", orQ(c.Name), intOrQ(c.Days)))
	}
	return strings.Join(parts, " → ")
}

func tripContext(fields contextFields) section {
	return func(st *state.State) string {
		d := &st.Domain
		if d.Destination == nil && d.Dates == nil && len(d.Cities) == 0 {
			return ""
		}
		var dest state.Destination
		if d.Destination != nil {
			dest = *d.Destination
		}
		var dates state.Dates
		if d.Dates != nil {
			dates = *d.Dates
		}
		var travelers state.Travelers
		if d.Travelers != nil {
			travelers = *d.Travelers
		}

		lines := []string{
			"## Trip Context [auto-refreshed]",
			fmt.Sprintf("Destination: %s | Dates: %s to %s (%s days) | Travelers: %s, %s",
				strings.TrimSpace(dest.FlagEmoji+" "+orQ(dest.Country)),
				orQ(dates.Start), orQ(dates.End), intOrQ(dates.TotalDays),
				orQ(travelers.Type), intOrQ(travelers.Count)),
			"Route: " + route(d.Cities),
		}
		if fields&fieldInterests != 0 && len(d.Interests) > 0 {
			lines = append(lines, "Interests: "+strings.Join(d.Interests, ", "))
		}
		if fields&fieldMustDos != 0 && len(d.MustDos) > 0 {
			lines = append(lines, "Must-dos: "+strings.Join(d.MustDos, ", "))
		}
		if fields&fieldBudget != 0 && d.Budget != nil {
			total := "?"
			if d.Budget.TotalEstimateUSD > 0 {
				total = usd(d.Budget.TotalEstimateUSD)
			}
			lines = append(lines, fmt.Sprintf("Budget: %s · %s total", orQ(d.Budget.Style), total))
		}
		if fields&fieldCurrency != 0 && dest.CurrencyCode != "" {
			rate := "?"
			if dest.ExchangeRateToUSD > 0 {
				rate = strconv.FormatFloat(dest.ExchangeRateToUSD, 'f', -1, 64)
			}
			lines = append(lines, fmt.Sprintf("Currency: %s (%s) · 1 USD = %s", dest.CurrencyCode, orQ(dest.CurrencySymbol), rate))
		}
		return strings.Join(lines, "\n")
	}
}

func phrases(m map[string]string, limit int, format string) []string {
	keys := state.SortedKeys(m)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf(format, k, m[k]))
	}
	return out
}

func destinationIntel(st *state.State) string {
	dest := st.Domain.Destination
	if dest == nil || dest.ResearchedAt == "" {
		return ""
	}
	type row struct{ field, value string }
	var rows []row
	if dest.Language != "" {
		rows = append(rows, row{"Language", dest.Language})
	}
	if dest.CurrencyCode != "" {
		currency := fmt.Sprintf("%s (%s)", dest.CurrencyCode, orQ(dest.CurrencySymbol))
		if dest.ExchangeRateToUSD > 0 {
			currency += fmt.Sprintf(" · 1 USD ≈ %s%s", dest.CurrencySymbol, strconv.FormatFloat(dest.ExchangeRateToUSD, 'f', -1, 64))
		}
		rows = append(rows, row{"Currency", currency})
	}
	if dest.TippingCulture != "" {
		rows = append(rows, row{"Tipping", dest.TippingCulture})
	}
	if dest.PaymentNorms != "" {
		rows = append(rows, row{"Payment", dest.PaymentNorms})
	}
	if dest.ClimateType != "" {
		climate := dest.ClimateType
		if dest.CurrentSeasonNotes != "" {
			climate += " — " + dest.CurrentSeasonNotes
		}
		rows = append(rows, row{"Climate", climate})
	}
	if len(dest.UsefulPhrases) > 0 {
		rows = append(rows, row{"Phrases", strings.Join(phrases(dest.UsefulPhrases, 5, "%s = %q"), ", ")})
	}
	if len(rows) == 0 {
		return ""
	}
	lines := []string{"## Destination Intel [auto-refreshed]", "", "| Field | Value |", "|-------|-------|"}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("| %s | %s |", r.field, r.value))
	}
	return strings.Join(lines, "\n")
}

func researchProgress(st *state.State) string {
	d := &st.Domain
	if len(d.Cities) == 0 {
		return ""
	}
	lines := []string{
		"## Research Progress [auto-refreshed]",
		"| City | Status | Items | Updated |",
		"|------|--------|-------|---------|",
	}
	for _, c := range d.Cities {
		r, ok := d.Research[c.Name]
		if !ok {
			lines = append(lines, fmt.Sprintf("| %s | ⏳ | — | — |", orQ(c.Name)))
			continue
		}
		updated, _, _ := strings.Cut(r.LastUpdated, "T")
		lines = append(lines, fmt.Sprintf("| %s | ✅ | %d items | %s |", c.Name, r.Total(), orQ(updated)))
	}
	return strings.Join(lines, "\n")
}

func names(items []state.ResearchItem, limit int) string {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, orQ(it.Name))
	}
	return strings.Join(out, ", ")
}

func researchFindings(st *state.State) string {
	d := &st.Domain
	if len(d.Research) == 0 {
		return ""
	}
	lines := []string{"## Research Findings [auto-refreshed]"}
	routed := make(map[string]bool, len(d.Cities))
	for _, c := range d.Cities {
		routed[c.Name] = true
		r, ok := d.Research[c.Name]
		if !ok {
			continue
		}
		detail := fmt.Sprintf("Items: %d", r.Total())
		if len(r.Places) > 0 {
			detail += fmt.Sprintf(" · Places: %d (%s)", len(r.Places), names(r.Places, 3))
		}
		if len(r.Food) > 0 {
			detail += fmt.Sprintf(" · Food: %d (%s)", len(r.Food), names(r.Food, 3))
		}
		if len(r.Activities) > 0 {
			detail += fmt.Sprintf(" · Activities: %d", len(r.Activities))
		}
		if len(r.HiddenGems) > 0 {
			detail += fmt.Sprintf(" · Hidden gems: %d", len(r.HiddenGems))
		}
		lines = append(lines, "", fmt.Sprintf("### %s (%s days)", c.Name, intOrQ(c.Days)), detail)
	}
	for _, name := range state.SortedKeys(d.Research) {
		if routed[name] {
			continue
		}
		lines = append(lines, "", "### "+name, fmt.Sprintf("Items: %d", d.Research[name].Total()))
	}
	return strings.Join(lines, "\n")
}

var tierOrder = []struct {
	key, label, icon string
}{
	{state.TierMustDo, "Must Do", "🔴"},
	{state.TierNiceToHave, "Nice to Have", "🟡"},
	{state.TierIfNearby, "If Nearby", "🟢"},
	{state.TierSkip, "Skip", "⚪"},
}

func prioritiesSummary(st *state.State) string {
	d := &st.Domain
	if len(d.Priorities) == 0 {
		return ""
	}
	lines := []string{"## Priorities [auto-refreshed]"}
	for _, city := range state.SortedKeys(d.Priorities) {
		byTier := make(map[string][]string)
		for _, it := range d.Priorities[city] {
			byTier[it.Tier] = append(byTier[it.Tier], orQ(it.Name))
		}
		lines = append(lines, "", "### "+city, "| Tier | Items |", "|------|-------|")
		for _, t := range tierOrder {
			items := byTier[t.key]
			if len(items) == 0 {
				continue
			}
			shown := items
			if len(shown) > 5 {
				shown = shown[:5]
			}
			list := strings.Join(shown, ", ")
			if len(items) > 5 {
				list += fmt.Sprintf(" +%d more", len(items)-5)
			}
			lines = append(lines, fmt.Sprintf("| %s %s (%d) | %s |", t.icon, t.label, len(items), list))
		}
	}
	return strings.Join(lines, "\n")
}

func foodHighlights(st *state.State) string {
	d := &st.Domain
	lines := []string{"## Food Highlights [auto-refreshed]"}
	for _, city := range state.SortedKeys(d.Research) {
		food := d.Research[city].Food
		if len(food) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s", city, names(food, 5)))
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func itinerary(st *state.State) string {
	plan := st.Domain.Plan
	if len(plan) == 0 {
		return ""
	}
	lines := []string{"## Itinerary [auto-refreshed]", "", "| Day | Date | City | Theme |", "|-----|------|------|-------|"}
	for _, p := range plan {
		lines = append(lines, fmt.Sprintf("| %d | %s | %s | %s |", p.Day, orQ(p.Date), orQ(p.City), orQ(p.Theme)))
	}
	return strings.Join(lines, "\n")
}

func practicalInfo(st *state.State) string {
	dest := st.Domain.Destination
	if dest == nil {
		return ""
	}
	lines := []string{"## Practical Info [auto-refreshed]"}
	if dest.ClimateType != "" {
		climate := dest.ClimateType
		if dest.CurrentSeasonNotes != "" {
			climate += " — " + dest.CurrentSeasonNotes
		}
		lines = append(lines, "Climate: "+climate)
	}
	if len(dest.TransportApps) > 0 {
		lines = append(lines, "Transport apps: "+strings.Join(dest.TransportApps, ", "))
	}
	if dest.PaymentNorms != "" {
		lines = append(lines, "Payment: "+dest.PaymentNorms)
	}
	if len(dest.UsefulPhrases) > 0 {
		lines = append(lines, "Key phrases: "+strings.Join(phrases(dest.UsefulPhrases, 5, "%q = %q"), ", "))
	}
	if len(dest.EmergencyNumbers) > 0 {
		lines = append(lines, "Emergency: "+strings.Join(phrases(dest.EmergencyNumbers, len(dest.EmergencyNumbers), "%s: %s"), ", "))
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func bookingDeadlines(st *state.State) string {
	d := &st.Domain
	var deadlines []string
	for _, city := range state.SortedKeys(d.Research) {
		r := d.Research[city]
		for _, group := range [][]state.ResearchItem{r.Places, r.Activities, r.Food} {
			for _, it := range group {
				if !it.AdvanceBooking {
					continue
				}
				lead := it.BookingLeadTime
				if lead == "" {
					lead = "book in advance"
				}
				deadlines = append(deadlines, fmt.Sprintf("- %s (%s): %s", orQ(it.Name), city, lead))
			}
		}
	}
	if len(deadlines) == 0 {
		return ""
	}
	return "## Booking Deadlines [auto-refreshed]\n" + strings.Join(deadlines, "\n")
}

func recentFeedback(st *state.State) string {
	log := st.Domain.FeedbackLog
	if len(log) == 0 {
		return ""
	}
	if len(log) > recentFeedbackEntries {
		log = log[len(log)-recentFeedbackEntries:]
	}
	lines := []string{"## Recent Feedback [auto-refreshed]"}
	for _, e := range log {
		lines = append(lines, fmt.Sprintf("- Day %d: %s (energy: %s)", e.Day, e.Highlight, orQ(e.EnergyLevel)))
	}
	return strings.Join(lines, "\n")
}

func todaysPlan(st *state.State) string {
	d := &st.Domain
	day := d.CurrentTripDay
	if day < 1 {
		day = 1
	}
	for _, p := range d.Plan {
		if p.Day != day {
			continue
		}
		lines := []string{
			"## Today's Plan [auto-refreshed]",
			fmt.Sprintf("Day %d: %s — %q", day, orQ(p.City), orQ(p.Theme)),
		}
		if len(p.KeyActivities) > 0 {
			acts := make([]string, 0, len(p.KeyActivities))
			for _, a := range p.KeyActivities {
				acts = append(acts, orQ(a.Name))
			}
			lines = append(lines, "Activities: "+strings.Join(acts, ", "))
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func firstTwo(s []string) string {
	if len(s) > 2 {
		s = s[:2]
	}
	return strings.Join(s, ", ")
}

func feedbackHistory(st *state.State) string {
	log := st.Domain.FeedbackLog
	if len(log) == 0 {
		return ""
	}
	lines := []string{
		"## Feedback History [auto-refreshed]",
		"| Day | Highlight | Energy | Discoveries | Adjustments |",
		"|-----|-----------|--------|-------------|-------------|",
	}
	for _, e := range log {
		lines = append(lines, fmt.Sprintf("| %d | %s | %s | %s | %s |",
			e.Day, e.Highlight, orQ(e.EnergyLevel), firstTwo(e.Discoveries), firstTwo(e.AdjustmentsMade)))
	}
	return strings.Join(lines, "\n")
}

func costOverview(st *state.State) string {
	d := &st.Domain
	if d.Costs == nil || d.Costs.Totals == nil {
		return ""
	}
	totals := d.Costs.Totals
	budget := totals.BudgetUSD
	if d.Budget != nil && d.Budget.TotalEstimateUSD > 0 {
		budget = d.Budget.TotalEstimateUSD
	}
	lines := []string{"## Cost Overview [auto-refreshed]", "", "| Metric | Value |", "|--------|-------|"}
	if budget > 0 {
		lines = append(lines, fmt.Sprintf("| Budget | %s |", usd(budget)))
	}
	lines = append(lines, fmt.Sprintf("| Spent | %s |", usd(totals.SpentUSD)))
	if budget > 0 {
		lines = append(lines, fmt.Sprintf("| Remaining | %s |", usd(budget-totals.SpentUSD)))
	}
	if totals.DailyAvgUSD > 0 {
		lines = append(lines, fmt.Sprintf("| Daily Avg | %s/day |", usd(totals.DailyAvgUSD)))
	}
	return strings.Join(lines, "\n")
}

func spending(heading string, m map[string]state.Spend, label func(string) string) string {
	if len(m) == 0 {
		return ""
	}
	lines := []string{heading}
	for _, k := range state.SortedKeys(m) {
		lines = append(lines, fmt.Sprintf("- %s: %s", label(k), usd(m[k].SpentUSD)))
	}
	return strings.Join(lines, "\n")
}

func spendingByCategory(st *state.State) string {
	if st.Domain.Costs == nil {
		return ""
	}
	return spending("## Spending by Category [auto-refreshed]", st.Domain.Costs.ByCategory, title)
}

func spendingByCity(st *state.State) string {
	if st.Domain.Costs == nil {
		return ""
	}
	return spending("## Spending by City [auto-refreshed]", st.Domain.Costs.ByCity, func(s string) string { return s })
}

func pricingBenchmarks(st *state.State) string {
	dest := st.Domain.Destination
	if dest == nil || len(dest.DailyBudgetBenchmarks) == 0 {
		return ""
	}
	lines := []string{"## Pricing Benchmarks [auto-refreshed]"}
	for _, level := range state.SortedKeys(dest.DailyBudgetBenchmarks) {
		lines = append(lines, fmt.Sprintf("- %s: ~%s/day/person", title(level), usd(dest.DailyBudgetBenchmarks[level])))
	}
	return strings.Join(lines, "\n")
}

func savingsTips(st *state.State) string {
	if st.Domain.Costs == nil || len(st.Domain.Costs.SavingsTips) == 0 {
		return ""
	}
	tips := st.Domain.Costs.SavingsTips
	if len(tips) > 5 {
		tips = tips[:5]
	}
	lines := []string{"## Savings Tips [auto-refreshed]"}
	for _, t := range tips {
		lines = append(lines, "- "+t)
	}
	return strings.Join(lines, "\n")
}
