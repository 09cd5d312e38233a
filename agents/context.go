package agents

import (
	"fmt"
	"strings"

	"github.com/sehgal-vip/travel-agent/state"
)

const maxPhrases = 5

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func orQ[T comparable](v T) string {
	var zero T
	if v == zero {
		return "?"
	}
	return fmt.Sprint(v)
}

// DestinationContext renders the trip facts given to specialists that have
// no memory document. It is empty until a destination country is known.
func DestinationContext(d *state.Domain) string {
	dest := d.Destination
	if dest == nil || dest.Country == "" {
		return ""
	}

	lines := []string{
		"Country: " + strings.TrimSpace(dest.FlagEmoji+" "+dest.Country),
		"Region: " + orUnknown(dest.Region),
		"Language: " + orUnknown(dest.Language),
		fmt.Sprintf("Currency: %s (%s)", orQ(dest.CurrencyCode), orQ(dest.CurrencySymbol)),
		fmt.Sprintf("Exchange rate: 1 USD = %s %s", orQ(dest.ExchangeRateToUSD), dest.CurrencyCode),
		"Climate: " + orUnknown(dest.ClimateType),
		"Payment norms: " + orUnknown(dest.PaymentNorms),
		"Tipping: " + orUnknown(dest.TippingCulture),
	}

	if len(dest.UsefulPhrases) > 0 {
		keys := state.SortedKeys(dest.UsefulPhrases)
		if len(keys) > maxPhrases {
			keys = keys[:maxPhrases]
		}
		phrases := make([]string, 0, len(keys))
		for _, k := range keys {
			phrases = append(phrases, fmt.Sprintf("%q = %q", k, dest.UsefulPhrases[k]))
		}
		lines = append(lines, "Key phrases: "+strings.Join(phrases, ", "))
	}

	if len(d.Cities) > 0 {
		stops := make([]string, 0, len(d.Cities))
		for _, c := range d.Cities {
			stops = append(stops, fmt.Sprintf("%s (%sd)", orQ(c.Name), orQ(c.Days)))
		}
		lines = append(lines, "Route: "+strings.Join(stops, " → "))
	}
	if d.Dates != nil && d.Dates.Start != "" {
		lines = append(lines, fmt.Sprintf("Dates: %s to %s (%s days)", d.Dates.Start, orQ(d.Dates.End), orQ(d.Dates.TotalDays)))
	}
	if d.Travelers != nil {
		lines = append(lines, fmt.Sprintf("Travelers: %s (%s)", orQ(d.Travelers.Count), orQ(d.Travelers.Type)))
	}
	if d.Budget != nil {
		lines = append(lines, "Budget style: "+orQ(d.Budget.Style))
	}
	if len(d.Interests) > 0 {
		lines = append(lines, "Interests: "+strings.Join(d.Interests, ", "))
	}
	return strings.Join(lines, "\n")
}
