// Package schedule holds the domain model for group events: definitions,
// occurrence calculation, input validation, and the per-user reminder ledger.
package schedule

import "time"

type EventKind string

const (
	KindOneTime   EventKind = "one_time"
	KindRecurring EventKind = "recurring"
)

// Phase is one of the three reminder moments tracked per user per event.
type Phase string

const (
	PhasePre   Phase = "pre"
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// PhaseFlags records which reminder phases were already delivered to one user.
type PhaseFlags struct {
	Pre   bool `json:"pre"`
	Start bool `json:"start"`
	End   bool `json:"end"`
}

// OneTimeFields describe a single occurrence on a fixed civil date.
// Date is "YYYY-MM-DD"; times are "HH:MM" in the configured timezone.
type OneTimeFields struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// RecurringFields describe a weekly-repeating occurrence.
// DaysOfWeek uses 0=Sunday..6=Saturday. DeleteAfter ("YYYY-MM-DD", optional)
// retires the definition the day after that date.
type RecurringFields struct {
	StartDate   string `json:"start_date,omitempty"`
	DaysOfWeek  []int  `json:"days_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	DeleteAfter string `json:"delete_after,omitempty"`
}

// EventDefinition is the stored description of a group event.
// Exactly one of OneTime/Recurring is populated, matching Kind.
type EventDefinition struct {
	ID          int64            `json:"id"`
	GroupKey    string           `json:"group_key"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Curator     string           `json:"curator"`
	Kind        EventKind        `json:"kind"`
	OneTime     *OneTimeFields   `json:"one_time,omitempty"`
	Recurring   *RecurringFields `json:"recurring,omitempty"`

	// Ledger tracks delivered reminders per member. Mutated only through
	// Fired/MarkFired/ClearFired.
	Ledger map[int64]*PhaseFlags `json:"ledger,omitempty"`
}

// Group is a membership record. The scheduling core only reads it.
type Group struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	CreatorID int64   `json:"creator_id"`
	Members   []int64 `json:"members"`
}

func (g *Group) HasMember(userID int64) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Occurrence is a concrete start/end instant pair derived from a definition
// for a specific calendar date.
type Occurrence struct {
	Start time.Time
	End   time.Time
}
