package state

import (
	"fmt"
	"sort"
)

// Destination is country-level intelligence gathered once per trip.
type Destination struct {
	Country               string             `json:"country,omitempty"`
	CountryCode           string             `json:"country_code,omitempty"`
	Region                string             `json:"region,omitempty"`
	FlagEmoji             string             `json:"flag_emoji,omitempty"`
	Language              string             `json:"language,omitempty"`
	UsefulPhrases         map[string]string  `json:"useful_phrases,omitempty"`
	CurrencyCode          string             `json:"currency_code,omitempty"`
	CurrencySymbol        string             `json:"currency_symbol,omitempty"`
	ExchangeRateToUSD     float64            `json:"exchange_rate_to_usd,omitempty"`
	TippingCulture        string             `json:"tipping_culture,omitempty"`
	TransportApps         []string           `json:"transport_apps,omitempty"`
	PaymentNorms          string             `json:"payment_norms,omitempty"`
	EmergencyNumbers      map[string]string  `json:"emergency_numbers,omitempty"`
	TimeZone              string             `json:"time_zone,omitempty"`
	ClimateType           string             `json:"climate_type,omitempty"`
	CurrentSeasonNotes    string             `json:"current_season_notes,omitempty"`
	DailyBudgetBenchmarks map[string]float64 `json:"daily_budget_benchmarks,omitempty"`
	ResearchedAt          string             `json:"researched_at,omitempty"`
}

// City is one stop on the route.
type City struct {
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
	Days    int    `json:"days,omitempty"`
	Order   int    `json:"order,omitempty"`
}

type Dates struct {
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	TotalDays int    `json:"total_days,omitempty"`
}

type Travelers struct {
	Count   int      `json:"count,omitempty"`
	Type    string   `json:"type,omitempty"`
	Dietary []string `json:"dietary,omitempty"`
}

type Budget struct {
	Style            string  `json:"style,omitempty"`
	TotalEstimateUSD float64 `json:"total_estimate_usd,omitempty"`
	DailyTargetUSD   float64 `json:"daily_target_usd,omitempty"`
}

// ResearchItem is a single finding about a city.
type ResearchItem struct {
	ID              string   `json:"id,omitempty"`
	Name            string   `json:"name"`
	Category        string   `json:"category,omitempty"`
	Description     string   `json:"description,omitempty"`
	CostUSD         *float64 `json:"cost_usd,omitempty"`
	AdvanceBooking  bool     `json:"advance_booking,omitempty"`
	BookingLeadTime string   `json:"booking_lead_time,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// CityResearch groups research findings for one city.
type CityResearch struct {
	LastUpdated string         `json:"last_updated,omitempty"`
	Places      []ResearchItem `json:"places,omitempty"`
	Activities  []ResearchItem `json:"activities,omitempty"`
	Food        []ResearchItem `json:"food,omitempty"`
	Logistics   []ResearchItem `json:"logistics,omitempty"`
	Tips        []ResearchItem `json:"tips,omitempty"`
	HiddenGems  []ResearchItem `json:"hidden_gems,omitempty"`
}

// Total counts the items across every category.
func (c CityResearch) Total() int {
	return len(c.Places) + len(c.Activities) + len(c.Food) +
		len(c.Logistics) + len(c.Tips) + len(c.HiddenGems)
}

// Items returns every item, categories in a fixed order.
func (c CityResearch) Items() []ResearchItem {
	out := make([]ResearchItem, 0, c.Total())
	for _, group := range [][]ResearchItem{c.Places, c.Activities, c.Food, c.Logistics, c.Tips, c.HiddenGems} {
		out = append(out, group...)
	}
	return out
}

// Priority tiers.
const (
	TierMustDo     = "must_do"
	TierNiceToHave = "nice_to_have"
	TierIfNearby   = "if_nearby"
	TierSkip       = "skip"
)

type PrioritizedItem struct {
	ItemID   string `json:"item_id,omitempty"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Tier     string `json:"tier"`
	Score    int    `json:"score,omitempty"`
}

type Activity struct {
	Name string `json:"name"`
}

// DayPlan is one day of the high-level itinerary.
type DayPlan struct {
	Day           int        `json:"day"`
	Date          string     `json:"date,omitempty"`
	City          string     `json:"city,omitempty"`
	Theme         string     `json:"theme,omitempty"`
	KeyActivities []Activity `json:"key_activities,omitempty"`
}

type AgendaSlot struct {
	Time  string `json:"time,omitempty"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
}

// AgendaDay is one day of the detailed agenda.
type AgendaDay struct {
	Day   int          `json:"day"`
	Date  string       `json:"date,omitempty"`
	City  string       `json:"city,omitempty"`
	Slots []AgendaSlot `json:"slots,omitempty"`
}

type FeedbackEntry struct {
	Day             int      `json:"day"`
	Highlight       string   `json:"highlight,omitempty"`
	EnergyLevel     string   `json:"energy_level,omitempty"`
	Discoveries     []string `json:"discoveries,omitempty"`
	AdjustmentsMade []string `json:"adjustments_made,omitempty"`
}

type Spend struct {
	SpentUSD float64 `json:"spent_usd"`
}

type CostTotals struct {
	BudgetUSD    float64 `json:"budget_usd,omitempty"`
	SpentUSD     float64 `json:"spent_usd,omitempty"`
	RemainingUSD float64 `json:"remaining_usd,omitempty"`
	DailyAvgUSD  float64 `json:"daily_avg_usd,omitempty"`
}

// CostTracker aggregates spending.
type CostTracker struct {
	Totals      *CostTotals      `json:"totals,omitempty"`
	ByCategory  map[string]Spend `json:"by_category,omitempty"`
	ByCity      map[string]Spend `json:"by_city,omitempty"`
	SavingsTips []string         `json:"savings_tips,omitempty"`
}

type Library struct {
	Path       string `json:"path,omitempty"`
	LastSynced string `json:"last_synced,omitempty"`
}

// FallbackTitle derives a display title when none was set.
func (d *Domain) FallbackTitle() string {
	if d.Destination != nil && d.Destination.Country != "" {
		return d.Destination.Country + " Trip"
	}
	return "Trip"
}

func (d *Domain) HasResearch() bool   { return len(d.Research) > 0 }
func (d *Domain) HasPriorities() bool { return len(d.Priorities) > 0 }
func (d *Domain) HasPlan() bool       { return len(d.Plan) > 0 }
func (d *Domain) HasAgenda() bool     { return len(d.Agenda) > 0 }

// ResearchedCities counts configured cities that have research.
func (d *Domain) ResearchedCities() int {
	n := 0
	for _, c := range d.Cities {
		if _, ok := d.Research[c.Name]; ok {
			n++
		}
	}
	return n
}

// PrioritizedCities counts configured cities that have priorities.
func (d *Domain) PrioritizedCities() int {
	n := 0
	for _, c := range d.Cities {
		if _, ok := d.Priorities[c.Name]; ok {
			n++
		}
	}
	return n
}

// Summary renders a compact one-line description for intent classification.
func (d *Domain) Summary() string {
	country := "unset"
	if d.Destination != nil && d.Destination.Country != "" {
		country = d.Destination.Country
	}
	names := make([]string, 0, len(d.Cities))
	for _, c := range d.Cities {
		names = append(names, c.Name)
	}
	return fmt.Sprintf(
		"onboarding_complete=%t destination=%s cities=%v research=%d/%d priorities=%d/%d plan=%t agenda=%t feedback_entries=%d",
		d.OnboardingComplete, country, names,
		d.ResearchedCities(), len(d.Cities),
		d.PrioritizedCities(), len(d.Cities),
		d.HasPlan(), d.HasAgenda(), len(d.FeedbackLog),
	)
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
