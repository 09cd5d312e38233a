package router

import (
	"fmt"
	"strings"

	"github.com/sehgal-vip/travel-agent/state"
)

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// StatusText renders the planning dashboard.
func StatusText(st *state.State) string {
	d := &st.Domain
	if !d.OnboardingComplete {
		return "Your trip hasn't been set up yet. Send /start to begin planning!"
	}

	flag, country, currency := "", "Unknown", "USD"
	if d.Destination != nil {
		flag = d.Destination.FlagEmoji
		if d.Destination.Country != "" {
			country = d.Destination.Country
		}
		if d.Destination.CurrencyCode != "" {
			currency = d.Destination.CurrencyCode
		}
	}
	days := "?"
	if d.Dates != nil && d.Dates.TotalDays > 0 {
		days = fmt.Sprint(d.Dates.TotalDays)
	}

	researched, prioritized := d.ResearchedCities(), d.PrioritizedCities()
	itinerary := "Not started"
	switch {
	case d.PlanStatus == "approved":
		itinerary = "Approved"
	case d.HasPlan():
		itinerary = "Draft"
	}
	agenda := "Not started"
	if d.HasAgenda() {
		agenda = "Generated"
	}
	var spent float64
	if d.Costs != nil && d.Costs.Totals != nil {
		spent = d.Costs.Totals.SpentUSD
	}

	lines := []string{
		strings.TrimSpace(fmt.Sprintf("%s %s Trip — %s Days — Planning Status", flag, country, days)),
		"",
		mark(true) + " Onboarding complete",
		fmt.Sprintf("%s Research: %d/%d cities", mark(researched > 0), researched, len(d.Cities)),
		fmt.Sprintf("%s Priorities: %d/%d cities", mark(prioritized > 0), prioritized, len(d.Cities)),
		fmt.Sprintf("%s Itinerary: %s", mark(d.HasPlan()), itinerary),
		fmt.Sprintf("%s Detailed agenda: %s", mark(d.HasAgenda()), agenda),
		fmt.Sprintf("💰 Budget: %s / $%.0f spent", currency, spent),
	}
	return strings.Join(lines, "\n")
}

// HelpText lists the available commands.
func HelpText() string {
	return `Available commands:

/start — Begin planning a new trip
/research <city> — Research a specific city
/research all — Research all cities
/library — Sync your markdown knowledge base
/priorities — View or adjust priority tiers
/plan — Generate or view your itinerary
/agenda — Get detailed agenda for the next 2 days
/feedback — End-of-day check-in
/adjust — Adjust the plan based on how things are going
/costs — View budget breakdown
/status — Trip planning progress
/help — Show this help message

Or just chat naturally — I'll understand what you need!`
}
