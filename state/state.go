package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Domain holds the handler-owned fields of a conversation.
// Keys outside the named fields are kept verbatim in Extra.
type Domain struct {
	Destination        *Destination                 `json:"destination,omitempty"`
	Dates              *Dates                       `json:"dates,omitempty"`
	Cities             []City                       `json:"cities,omitempty"`
	Travelers          *Travelers                   `json:"travelers,omitempty"`
	Budget             *Budget                      `json:"budget,omitempty"`
	Interests          []string                     `json:"interests,omitempty"`
	MustDos            []string                     `json:"must_dos,omitempty"`
	OnboardingComplete bool                         `json:"onboarding_complete,omitempty"`
	Research           map[string]CityResearch      `json:"research,omitempty"`
	Priorities         map[string][]PrioritizedItem `json:"priorities,omitempty"`
	Plan               []DayPlan                    `json:"high_level_plan,omitempty"`
	PlanStatus         string                       `json:"plan_status,omitempty"`
	Agenda             []AgendaDay                  `json:"detailed_agenda,omitempty"`
	FeedbackLog        []FeedbackEntry              `json:"feedback_log,omitempty"`
	Costs              *CostTracker                 `json:"cost_tracker,omitempty"`
	CurrentTripDay     int                          `json:"current_trip_day,omitempty"`
	Library            *Library                     `json:"library,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// domainFields has Domain's layout without its JSON methods.
type domainFields Domain

var (
	knownOnce sync.Once
	known     map[string]struct{}
)

func knownKeys() map[string]struct{} {
	knownOnce.Do(func() {
		known = make(map[string]struct{})
		t := reflect.TypeOf(domainFields{})
		for i := 0; i < t.NumField(); i++ {
			name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
			if name != "" && name != "-" {
				known[name] = struct{}{}
			}
		}
	})
	return known
}

// MarshalJSON flattens Extra alongside the named fields.
func (d Domain) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(domainFields(d))
	if err != nil || len(d.Extra) == 0 {
		return base, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range d.Extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON routes unrecognized keys into Extra.
func (d *Domain) UnmarshalJSON(data []byte) error {
	var f domainFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	keys := knownKeys()
	for k, v := range m {
		if _, ok := keys[k]; ok {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]json.RawMessage)
		}
		f.Extra[k] = v
	}
	*d = Domain(f)
	return nil
}

// Patch is a set of domain updates keyed by JSON field name.
type Patch map[string]any

// Apply shallow-merges p into d. Each key fully replaces its prior value;
// a nil value clears it. On error d is left untouched.
func (d *Domain) Apply(p Patch) error {
	if len(p) == 0 {
		return nil
	}
	base, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode domain: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return fmt.Errorf("decode domain: %w", err)
	}
	for k, v := range p {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode patch key %q: %w", k, err)
		}
		m[k] = raw
	}
	merged, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode merged domain: %w", err)
	}
	var next Domain
	if err := json.Unmarshal(merged, &next); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	for k, raw := range next.Extra {
		if string(raw) == "null" {
			delete(next.Extra, k)
		}
	}
	*d = next
	return nil
}

// Entry is one line of conversation history.
type Entry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Handler   string    `json:"handler,omitempty"`
}

// State is the shared record for one conversation.
type State struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Domain         Domain    `json:"domain"`
	History        []Entry   `json:"history,omitempty"`
	CurrentHandler string    `json:"current_handler,omitempty"`

	// Control is owned by the dispatcher and never serialized.
	Control Control `json:"-"`
}

// New creates an empty state for a conversation.
func New(conversationID string) *State {
	now := time.Now().UTC()
	return &State{ConversationID: conversationID, CreatedAt: now, UpdatedAt: now}
}

// DisplayTitle returns Title or a title derived from the destination.
func (s *State) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Domain.FallbackTitle()
}

// Append adds a history entry.
func (s *State) Append(role, text, handler string, at time.Time) {
	s.History = append(s.History, Entry{Role: role, Text: text, Timestamp: at, Handler: handler})
	s.UpdatedAt = at
}

// Clone returns a deep copy including the control record.
func (s *State) Clone() *State {
	out := &State{}
	data, err := json.Marshal(s)
	if err == nil {
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		cp := *s
		cp.History = append([]Entry(nil), s.History...)
		out = &cp
	}
	out.Control = s.Control.clone()
	return out
}
