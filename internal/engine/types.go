package engine

import "time"

type RuleKind string

const (
	KindInterval RuleKind = "interval"
	KindWeekly   RuleKind = "weekly"
)

// Slot is one weekday+time entry of a weekly rule, in the configured zone.
type Slot struct {
	Weekday time.Weekday `json:"weekday"` // 0 = Sunday
	Hour    int          `json:"hour"`
	Minute  int          `json:"minute"`
}

// Rule is the canonical recurrence rule: either an elapsed interval since the
// last recorded kill, or fixed weekly slots independent of history.
//
// Slots keep the insertion order of the user's input; nothing downstream may
// assume they are sorted.
type Rule struct {
	Kind          RuleKind `json:"kind"`
	PeriodMinutes int      `json:"period_minutes,omitempty"`
	Slots         []Slot   `json:"slots,omitempty"`
}

// Record is one tracked boss. The store owns all instances; engine functions
// take and return copies and keep no state of their own.
type Record struct {
	Name             string     `json:"name"`
	Rule             Rule       `json:"rule"`
	LastKill         *time.Time `json:"last_kill,omitempty"` // interval rules only
	AlertLeadMinutes int        `json:"alert_lead_minutes"`
	LastAlerted      *time.Time `json:"last_alerted,omitempty"` // occurrence already alerted
}

// Alert is the payload produced when a record enters its lead window.
type Alert struct {
	Boss        string
	At          time.Time // the upcoming occurrence
	LeadMinutes int
}
