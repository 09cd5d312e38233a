// Package agents provides the LLM-backed specialist handlers, the library
// sync handler, the intent classifier, the general-chat responder and the
// note generator.
package agents

import (
	"github.com/sehgal-vip/travel-agent/handler"
)

// Tone is prepended to every system prompt.
const Tone = "You are a friendly, knowledgeable travel assistant. Be warm but concise. Use plain language."

const (
	// InputBudget is the prompt token budget, sized for 200K-context models.
	InputBudget = 160_000
	// DefaultMaxTokens is the output budget for handlers without an override.
	DefaultMaxTokens = 4096
	// KeepRecent is the number of history entries sent verbatim.
	KeepRecent = 15
)

// Spec describes one specialist.
type Spec struct {
	Name        string
	Description string
	// Instructions is a text/template rendered with Vars.
	Instructions string
	// Owns lists the state keys the specialist may patch.
	Owns      []string
	MaxTokens int
	// AwaitUntilOnboarded keeps the conversation with this specialist until
	// onboarding_complete is set.
	AwaitUntilOnboarded bool
}

func (s Spec) owns(key string) bool {
	for _, k := range s.Owns {
		if k == key {
			return true
		}
	}
	return false
}

func (s Spec) maxTokens() int {
	if s.MaxTokens > 0 {
		return s.MaxTokens
	}
	return DefaultMaxTokens
}

// Catalog returns the built-in specialists in registration order.
func Catalog() []Spec {
	return []Spec{
		{
			Name:        handler.Onboarding,
			Description: "trip setup: destination, dates, cities, travelers, budget, interests",
			Instructions: `You are the Onboarding Agent. Collect the trip basics one or two questions at a time:
destination country, dates, cities with days per city, travelers, budget style, interests and must-dos.
{{if .Country}}The destination so far is {{.Country}}.{{end}}
Only set onboarding_complete to true once destination, dates and at least one city are known
and the traveler has confirmed the summary.`,
			Owns:                []string{"destination", "dates", "cities", "travelers", "budget", "interests", "must_dos", "onboarding_complete"},
			AwaitUntilOnboarded: true,
		},
		{
			Name:        handler.Research,
			Description: "research places, activities, food, logistics and tips for the trip's cities",
			Instructions: `You are the Research Agent for a trip to {{or .Country "the destination"}}.
Research the requested city, or the next unresearched city, across places, activities, food,
logistics, tips and hidden gems. Give every item a stable id, a category, an approximate cost_usd
and whether it needs advance booking.
Return the full research map for the touched cities under "research". Country-level facts go under "destination".`,
			Owns:      []string{"research", "destination"},
			MaxTokens: 16384,
		},
		{
			Name:        handler.Prioritizer,
			Description: "rank researched items into must do, nice to have, if nearby and skip",
			Instructions: `You are the Prioritizer. Sort each city's researched items into the tiers must_do, nice_to_have,
if_nearby and skip, using the traveler's interests and must-dos. Score each item 0-100.
Return the full priorities map keyed by city.`,
			Owns:      []string{"priorities"},
			MaxTokens: 8192,
		},
		{
			Name:        handler.Planner,
			Description: "draft or revise the day-by-day high-level plan",
			Instructions: `You are the Planner. Build a day-by-day plan that follows the route order and day counts,
with a theme and key activities per day drawn from the must_do and nice_to_have tiers.
Return the whole plan as high_level_plan and set plan_status to "draft" or "approved".`,
			Owns:      []string{"high_level_plan", "plan_status"},
			MaxTokens: 16384,
		},
		{
			Name:        handler.Scheduler,
			Description: "turn the approved plan into a detailed timed agenda",
			Instructions: `You are the Scheduler. Turn the high-level plan into timed slots per day, including meals,
transit and booking reminders. Return the whole agenda as detailed_agenda.`,
			Owns:      []string{"detailed_agenda"},
			MaxTokens: 8192,
		},
		{
			Name:        handler.Feedback,
			Description: "collect end-of-day feedback and adjust the rest of the trip",
			Instructions: `You are the Feedback Agent. Ask how the day went: highlight, energy level and discoveries.
Append an entry to feedback_log, advance current_trip_day, and adjust detailed_agenda for the remaining
days when the feedback calls for it.`,
			Owns: []string{"feedback_log", "current_trip_day", "detailed_agenda"},
		},
		{
			Name:        handler.Cost,
			Description: "budget tracking, spending logs and savings tips",
			Instructions: `You are the Cost Agent. Track spending against the budget in both the local currency
{{- if .Currency}} ({{.Currency}}){{end}} and USD, e.g. "¥2,000 (~$13.50)".
Update cost_tracker with totals, spending by category and by city, and destination-specific savings tips.`,
			Owns: []string{"cost_tracker"},
		},
	}
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Spec, bool) {
	for _, s := range Catalog() {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}
