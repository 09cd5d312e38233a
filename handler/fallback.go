package handler

// DefaultFallback is used for handlers without a registered apology.
const DefaultFallback = "Something went wrong. Try your last command again."

var fallbacks = map[string]string{
	Onboarding: "I encountered an issue. Please try again or send /help.",
	Research:   "I had trouble researching that. Try again or try a specific city.",
	Planner:    "I had trouble generating the plan. Try /plan again.",
	Scheduler:  "I had trouble building the agenda. Try /agenda again.",
	Feedback:   "I had trouble processing your feedback. Try /feedback again.",
	Cost:       "I had trouble with the cost calculation. Try /costs again.",
}

// FallbackText returns the built-in apology for a handler.
func FallbackText(name string) string {
	if text, ok := fallbacks[name]; ok {
		return text
	}
	return DefaultFallback
}
