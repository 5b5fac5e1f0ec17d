package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"planbot/internal/schedule"
	"planbot/internal/storage"
	"planbot/internal/transport"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64][]string
	fail bool
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return transport.MessageRef{}, errors.New("transport down")
	}
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[to.ChatID] = append(f.sent[to.ChatID], text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeSender) count(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[chatID])
}

func (f *fakeSender) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

// reminderEnv is a Service against memory stores with a hand-cranked clock.
type reminderEnv struct {
	t      *testing.T
	svc    *Service
	sender *fakeSender
	stores *storage.Stores
	now    time.Time
}

func newReminderEnv(t *testing.T) *reminderEnv {
	t.Helper()
	env := &reminderEnv{
		t:      t,
		sender: &fakeSender{},
		stores: storage.OpenMemory(10),
		// A Tuesday.
		now: time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC),
	}
	svc, err := New(Config{Tick: "1m"}, Deps{
		Events:   env.stores.Events,
		Groups:   env.stores.Groups,
		Settings: env.stores.Settings,
		Sender:   env.sender,
		Loc:      time.UTC,
		Now:      func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.svc = svc
	return env
}

func (e *reminderEnv) tickAt(t time.Time) {
	e.t.Helper()
	e.now = t
	if err := e.svc.Tick(context.Background()); err != nil {
		e.t.Fatalf("Tick at %v: %v", t, err)
	}
}

func (e *reminderEnv) group(members ...int64) *schedule.Group {
	e.t.Helper()
	g, err := e.stores.Groups.Create(context.Background(), "Team", members[0])
	if err != nil {
		e.t.Fatalf("create group: %v", err)
	}
	for _, m := range members[1:] {
		if _, err := e.stores.Groups.Join(context.Background(), m, g.Key); err != nil {
			e.t.Fatalf("join group: %v", err)
		}
	}
	return g
}

func (e *reminderEnv) oneTime(groupKey, date, start, end string) *schedule.EventDefinition {
	e.t.Helper()
	def, err := e.stores.Events.Create(context.Background(), &schedule.EventDefinition{
		GroupKey: groupKey,
		Name:     "Standup",
		Kind:     schedule.KindOneTime,
		OneTime:  &schedule.OneTimeFields{Date: date, StartTime: start, EndTime: end},
	})
	if err != nil {
		e.t.Fatalf("create event: %v", err)
	}
	return def
}

func TestPreReminderFiresOncePerMember(t *testing.T) {
	t.Parallel()
	env := newReminderEnv(t)
	g := env.group(1, 2, 3)
	def := env.oneTime(g.Key, "2026-09-01", "10:00", "11:00")

	// Default offset 10 minutes: pre fires at 09:50.
	preAt := time.Date(2026, time.September, 1, 9, 50, 0, 0, time.UTC)
	env.tickAt(preAt)

	for _, member := range []int64{1, 2, 3} {
		if n := env.sender.count(member); n != 1 {
			t.Fatalf("member %d got %d messages, want 1", member, n)
		}
		if got := env.sender.last(member); !strings.Contains(got, "starts at 10:00") || !strings.Contains(got, "in 10 min") {
			t.Fatalf("pre reminder = %q", got)
		}
	}

	// Same window, second tick: ledger suppresses the repeat.
	env.tickAt(preAt.Add(30 * time.Second))
	for _, member := range []int64{1, 2, 3} {
		if n := env.sender.count(member); n != 1 {
			t.Fatalf("member %d got %d messages after re-tick, want 1", member, n)
		}
	}

	// The marks survived persistence.
	stored, err := env.stores.Events.Get(context.Background(), def.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.Fired(2, schedule.PhasePre) {
		t.Fatalf("ledger not persisted: %+v", stored.Ledger)
	}
}

func TestStartAndEndPhasesFireAtTheirInstants(t *testing.T) {
	t.Parallel()
	env := newReminderEnv(t)
	g := env.group(1)
	env.oneTime(g.Key, "2026-09-01", "10:00", "11:00")

	env.tickAt(time.Date(2026, time.September, 1, 10, 0, 10, 0, time.UTC))
	if got := env.sender.last(1); !strings.Contains(got, "starting now") {
		t.Fatalf("start reminder = %q", got)
	}

	env.tickAt(time.Date(2026, time.September, 1, 11, 0, 10, 0, time.UTC))
	if got := env.sender.last(1); !strings.Contains(got, "has ended") {
		t.Fatalf("end reminder = %q", got)
	}
	if n := env.sender.count(1); n != 2 {
		t.Fatalf("messages = %d, want start + end", n)
	}
}

func TestMissedWindowDoesNotFireLate(t *testing.T) {
	t.Parallel()
	env := newReminderEnv(t)
	g := env.group(1)
	env.oneTime(g.Key, "2026-09-01", "10:00", "11:00")

	// First tick happens long after pre and start have passed their windows.
	env.tickAt(time.Date(2026, time.September, 1, 10, 30, 0, 0, time.UTC))
	if n := env.sender.count(1); n != 0 {
		t.Fatalf("messages = %d, want 0 for missed windows", n)
	}
}

func TestOneTimeRetirementAfterGrace(t *testing.T) {
	t.Parallel()
	env := newReminderEnv(t)
	g := env.group(1)
	def := env.oneTime(g.Key, "2026-09-01", "10:00", "11:00")
	ctx := context.Background()

	// Within grace the event survives (the end reminder needs its tick).
	env.tickAt(time.Date(2026, time.September, 1, 11, 4, 0, 0, time.UTC))
	if got, _ := env.stores.Events.Get(ctx, def.ID); got == nil {
		t.Fatal("event retired inside the grace period")
	}

	env.tickAt(time.Date(2026, time.September, 1, 11, 6, 0, 0, time.UTC))
	if got, _ := env.stores.Events.Get(ctx, def.ID); got != nil {
		t.Fatalf("event not retired after grace: %+v", got)
	}
}

func TestRecurringRearmsForNextOccurrence(t *testing.T) {
	t.Parallel()
	env := newReminderEnv(t)
	g := env.group(1)
	ctx := context.Background()

	// Mondays 10:00-10:15. Sept 7 and Sept 14 2026 are Mondays.
	if _, err := env.stores.Events.Create(ctx, &schedule.EventDefinition{
		GroupKey:  g.Key,
		Name:      "Weekly",
		Kind:      schedule.KindRecurring,
		Recurring: &schedule.RecurringFields{DaysOfWeek: []int{1}, StartTime: "10:00", EndTime: "10:15"},
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	env.tickAt(time.Date(2026, time.September, 7, 10, 0, 30, 0, time.UTC))
	if n := env.sender.count(1); n != 1 {
		t.Fatalf("first occurrence: %d messages, want the start reminder", n)
	}

	// Mid-week pass rearms the ledger for the next Monday.
	env.tickAt(time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC))

	env.tickAt(time.Date(2026, time.September, 14, 10, 0, 30, 0, time.UTC))
	if n := env.sender.count(1); n != 2 {
		t.Fatalf("second occurrence: %d messages total, want 2", n)
	}
}

func TestRecurringRetiresDayAfterDeleteAfter(t *testing.T) {
	t.Parallel()
	env := newReminderEnv(t)
	g := env.group(1)
	ctx := context.Background()

	def, err := env.stores.Events.Create(ctx, &schedule.EventDefinition{
		GroupKey: g.Key,
		Name:     "Weekly",
		Kind:     schedule.KindRecurring,
		Recurring: &schedule.RecurringFields{
			DaysOfWeek: []int{1}, StartTime: "10:00", EndTime: "10:15", DeleteAfter: "2026-09-07",
		},
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	env.tickAt(time.Date(2026, time.September, 7, 23, 0, 0, 0, time.UTC))
	if got, _ := env.stores.Events.Get(ctx, def.ID); got == nil {
		t.Fatal("event retired on its delete-after day")
	}

	env.tickAt(time.Date(2026, time.September, 8, 0, 1, 0, 0, time.UTC))
	if got, _ := env.stores.Events.Get(ctx, def.ID); got != nil {
		t.Fatalf("event not retired the day after delete-after: %+v", got)
	}
}

func TestOrphanedEventIsSkipped(t *testing.T) {
	t.Parallel()
	env := newReminderEnv(t)
	def := env.oneTime("ghost-key", "2026-09-01", "10:00", "11:00")
	ctx := context.Background()

	env.tickAt(time.Date(2026, time.September, 1, 10, 0, 10, 0, time.UTC))
	if len(env.sender.sent) != 0 {
		t.Fatalf("nothing should be delivered for an orphaned event, got %v", env.sender.sent)
	}
	if got, _ := env.stores.Events.Get(ctx, def.ID); got == nil {
		t.Fatal("orphaned event must not be deleted")
	}
}

func TestFailedDeliveryStillMarksLedger(t *testing.T) {
	t.Parallel()
	env := newReminderEnv(t)
	g := env.group(1)
	env.oneTime(g.Key, "2026-09-01", "10:00", "11:00")

	env.sender.fail = true
	env.tickAt(time.Date(2026, time.September, 1, 10, 0, 10, 0, time.UTC))

	// Transport recovers; the same phase must not be retried.
	env.sender.fail = false
	env.tickAt(time.Date(2026, time.September, 1, 10, 0, 40, 0, time.UTC))
	if n := env.sender.count(1); n != 0 {
		t.Fatalf("messages = %d, want 0 (phase marked despite failure)", n)
	}
}
