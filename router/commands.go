package router

import (
	"strings"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/state"
)

const (
	cmdStatus = "/status"
	cmdHelp   = "/help"
)

// commands maps slash commands to handler names. Status and help are
// answered by the router itself.
var commands = map[string]string{
	"/start":      handler.Onboarding,
	"/research":   handler.Research,
	"/library":    handler.Librarian,
	"/priorities": handler.Prioritizer,
	"/plan":       handler.Planner,
	"/agenda":     handler.Scheduler,
	"/feedback":   handler.Feedback,
	"/adjust":     handler.Feedback,
	"/costs":      handler.Cost,
	cmdStatus:     handler.Orchestrator,
	cmdHelp:       handler.Orchestrator,
}

// CommandTarget returns the handler a command maps to.
func CommandTarget(cmd string) (string, bool) {
	target, ok := commands[strings.ToLower(cmd)]
	return target, ok
}

type requirement struct {
	met  func(*state.Domain) bool
	hint string
}

var (
	needResearch   = requirement{(*state.Domain).HasResearch, "You need to research cities first. Try /research all"}
	needPriorities = requirement{(*state.Domain).HasPriorities, "You need to set priorities first. Try /priorities"}
	needPlan       = requirement{(*state.Domain).HasPlan, "You need a plan first. Try /plan"}
)

var prerequisites = map[string][]requirement{
	handler.Prioritizer: {needResearch},
	handler.Planner:     {needResearch, needPriorities},
	handler.Scheduler:   {needPlan},
}

// SetupHint is returned for any target other than onboarding while setup is
// incomplete.
const SetupHint = "Let's set up your trip first! Send /start to begin."

// CheckPrerequisites returns a guard message when target cannot run yet.
func CheckPrerequisites(d *state.Domain, target string) (string, bool) {
	if !d.OnboardingComplete && target != handler.Onboarding && target != handler.Orchestrator {
		return SetupHint, false
	}
	for _, req := range prerequisites[target] {
		if !req.met(d) {
			return req.hint, false
		}
	}
	return "", true
}

func parseCommand(msg string) (string, bool) {
	msg = strings.TrimSpace(msg)
	if !strings.HasPrefix(msg, "/") {
		return "", false
	}
	cmd, _, _ := strings.Cut(msg, " ")
	if i := strings.IndexAny(cmd, "\n\t"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), true
}
