package schedule

import (
	"testing"
	"time"
)

func recurringDef(days []int, start, end string) *EventDefinition {
	return &EventDefinition{
		ID:       1,
		GroupKey: "g1",
		Name:     "standup",
		Kind:     KindRecurring,
		Recurring: &RecurringFields{
			DaysOfWeek: days,
			StartTime:  start,
			EndTime:    end,
		},
	}
}

func TestNextOccurrenceRecurring(t *testing.T) {
	t.Parallel()
	loc := time.UTC

	// 2026-09-01 is a Tuesday.
	tuesday0900 := time.Date(2026, 9, 1, 9, 0, 0, 0, loc)

	tests := []struct {
		name      string
		def       *EventDefinition
		now       time.Time
		wantOK    bool
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "next matching weekday in same week",
			def:       recurringDef([]int{1, 3, 5}, "10:00", "11:00"),
			now:       tuesday0900,
			wantOK:    true,
			wantStart: time.Date(2026, 9, 2, 10, 0, 0, 0, loc),
			wantEnd:   time.Date(2026, 9, 2, 11, 0, 0, 0, loc),
		},
		{
			name:      "today matches and has not ended yet",
			def:       recurringDef([]int{2}, "10:00", "11:00"),
			now:       tuesday0900,
			wantOK:    true,
			wantStart: time.Date(2026, 9, 1, 10, 0, 0, 0, loc),
		},
		{
			name:      "today matches but already in progress",
			def:       recurringDef([]int{2}, "08:00", "12:00"),
			now:       tuesday0900,
			wantOK:    true,
			wantStart: time.Date(2026, 9, 1, 8, 0, 0, 0, loc),
		},
		{
			name:      "today rejected once end elapsed",
			def:       recurringDef([]int{2}, "06:00", "07:00"),
			now:       tuesday0900,
			wantOK:    true,
			wantStart: time.Date(2026, 9, 8, 6, 0, 0, 0, loc),
		},
		{
			name:   "no weekdays yields nothing",
			def:    recurringDef(nil, "10:00", "11:00"),
			now:    tuesday0900,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			occ, ok := NextOccurrence(tt.def, tt.now, loc)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !occ.Start.Equal(tt.wantStart) {
				t.Fatalf("start = %v, want %v", occ.Start, tt.wantStart)
			}
			if !tt.wantEnd.IsZero() && !occ.End.Equal(tt.wantEnd) {
				t.Fatalf("end = %v, want %v", occ.End, tt.wantEnd)
			}
		})
	}
}

func TestNextOccurrenceStartDateFence(t *testing.T) {
	t.Parallel()
	loc := time.UTC

	def := recurringDef([]int{2}, "10:00", "11:00") // Tuesdays
	def.Recurring.StartDate = "2026-09-05"          // a Saturday

	now := time.Date(2026, 9, 1, 9, 0, 0, 0, loc) // Tuesday before the fence
	occ, ok := NextOccurrence(def, now, loc)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2026, 9, 8, 10, 0, 0, 0, loc)
	if !occ.Start.Equal(want) {
		t.Fatalf("start = %v, want %v (first Tuesday after start date)", occ.Start, want)
	}
}

func TestNextOccurrenceOneTime(t *testing.T) {
	t.Parallel()
	loc := time.UTC

	def := &EventDefinition{
		ID:   2,
		Kind: KindOneTime,
		OneTime: &OneTimeFields{
			Date:      "2026-09-03",
			StartTime: "18:30",
			EndTime:   "20:00",
		},
	}

	// A one-time occurrence is returned even when now is long past it;
	// retirement is the scheduler's job.
	now := time.Date(2026, 12, 1, 0, 0, 0, 0, loc)
	occ, ok := NextOccurrence(def, now, loc)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	if !occ.Start.Equal(time.Date(2026, 9, 3, 18, 30, 0, 0, loc)) {
		t.Fatalf("unexpected start: %v", occ.Start)
	}
	if !occ.End.Equal(time.Date(2026, 9, 3, 20, 0, 0, 0, loc)) {
		t.Fatalf("unexpected end: %v", occ.End)
	}
}

func TestLedgerMarkFiredIdempotent(t *testing.T) {
	t.Parallel()

	def := recurringDef([]int{1}, "10:00", "11:00")
	if def.Fired(42, PhasePre) {
		t.Fatal("fresh ledger should read false")
	}
	def.MarkFired(42, PhasePre)
	def.MarkFired(42, PhasePre)
	if !def.Fired(42, PhasePre) {
		t.Fatal("flag should stay true")
	}
	if def.Fired(42, PhaseStart) || def.Fired(42, PhaseEnd) {
		t.Fatal("other phases must be untouched")
	}
	if def.Fired(7, PhasePre) {
		t.Fatal("other users must be untouched")
	}
}
