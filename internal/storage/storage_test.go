package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"planbot/internal/schedule"
	logx "planbot/pkg/logx"
)

func openBackends(t *testing.T) map[string]*Stores {
	t.Helper()

	sqliteStores, err := Open(Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "planbot.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStores.Close() })

	return map[string]*Stores{
		"memory": OpenMemory(10),
		"sqlite": sqliteStores,
	}
}

func TestConversationRoundTrip(t *testing.T) {
	for name, st := range openBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := st.Conversations.Get(ctx, 1, "default")
			if err != nil || got != nil {
				t.Fatalf("empty store Get = (%v, %v), want (nil, nil)", got, err)
			}

			in := &ConversationState{
				UserID:     1,
				ScenarioID: "default",
				BlockID:    "main_menu",
				BlockState: json.RawMessage(`{"phase":"menu"}`),
				Shared:     map[string]string{"event_id": "7"},
			}
			if err := st.Conversations.Put(ctx, in); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, err = st.Conversations.Get(ctx, 1, "default")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.BlockID != "main_menu" || got.Shared["event_id"] != "7" {
				t.Fatalf("unexpected state: %+v", got)
			}
			if string(got.BlockState) != `{"phase":"menu"}` {
				t.Fatalf("block state = %s", got.BlockState)
			}

			// Upsert replaces the row.
			in.BlockID = "settings"
			if err := st.Conversations.Put(ctx, in); err != nil {
				t.Fatalf("Put (update): %v", err)
			}
			got, _ = st.Conversations.Get(ctx, 1, "default")
			if got.BlockID != "settings" {
				t.Fatalf("block id = %s after upsert", got.BlockID)
			}

			if err := st.Conversations.Delete(ctx, 1, "default"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			got, _ = st.Conversations.Get(ctx, 1, "default")
			if got != nil {
				t.Fatal("state should be gone after Delete")
			}
		})
	}
}

func TestEventStoreCRUDAndLedger(t *testing.T) {
	for name, st := range openBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			def := &schedule.EventDefinition{
				GroupKey: "abc",
				Name:     "lecture",
				Kind:     schedule.KindOneTime,
				OneTime:  &schedule.OneTimeFields{Date: "2026-09-02", StartTime: "10:00", EndTime: "11:00"},
			}
			created, err := st.Events.Create(ctx, def)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if created.ID == 0 {
				t.Fatal("Create must assign an id")
			}

			byGroup, err := st.Events.ListByGroup(ctx, "abc")
			if err != nil || len(byGroup) != 1 {
				t.Fatalf("ListByGroup = (%v, %v), want one event", byGroup, err)
			}
			if other, _ := st.Events.ListByGroup(ctx, "zzz"); len(other) != 0 {
				t.Fatal("ListByGroup must filter by key")
			}

			// Ledger mutations persist through Update.
			created.MarkFired(42, schedule.PhasePre)
			ok, err := st.Events.Update(ctx, created)
			if err != nil || !ok {
				t.Fatalf("Update = (%v, %v)", ok, err)
			}
			reloaded, err := st.Events.Get(ctx, created.ID)
			if err != nil || reloaded == nil {
				t.Fatalf("Get = (%v, %v)", reloaded, err)
			}
			if !reloaded.Fired(42, schedule.PhasePre) {
				t.Fatal("ledger flag lost across persistence")
			}
			if reloaded.Fired(42, schedule.PhaseStart) {
				t.Fatal("unrelated ledger flag set")
			}

			ok, err = st.Events.Delete(ctx, created.ID)
			if err != nil || !ok {
				t.Fatalf("Delete = (%v, %v)", ok, err)
			}
			if gone, _ := st.Events.Get(ctx, created.ID); gone != nil {
				t.Fatal("event should be gone after Delete")
			}
			if ok, _ := st.Events.Delete(ctx, created.ID); ok {
				t.Fatal("second Delete should report false")
			}
		})
	}
}

func TestGroupStore(t *testing.T) {
	for name, st := range openBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			g, err := st.Groups.Create(ctx, "algebra", 100)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if g.Key == "" || !g.HasMember(100) {
				t.Fatalf("creator must be the first member: %+v", g)
			}

			if missing, _ := st.Groups.ByKey(ctx, "nope"); missing != nil {
				t.Fatal("unknown key should return nil group")
			}

			joined, err := st.Groups.Join(ctx, 200, g.Key)
			if err != nil || joined == nil {
				t.Fatalf("Join = (%v, %v)", joined, err)
			}
			joined, _ = st.Groups.Join(ctx, 200, g.Key) // idempotent
			if len(joined.Members) != 2 {
				t.Fatalf("members = %v, want exactly two", joined.Members)
			}

			mine, _ := st.Groups.ByMember(ctx, 200)
			if len(mine) != 1 {
				t.Fatalf("ByMember = %v", mine)
			}
			created, _ := st.Groups.CreatedBy(ctx, 100)
			if len(created) != 1 {
				t.Fatalf("CreatedBy = %v", created)
			}

			if err := st.Groups.SetCurrentGroup(ctx, 200, g.Key); err != nil {
				t.Fatalf("SetCurrentGroup: %v", err)
			}
			cur, _ := st.Groups.CurrentGroup(ctx, 200)
			if cur != g.Key {
				t.Fatalf("CurrentGroup = %q, want %q", cur, g.Key)
			}

			// Deleting the group clears selections pointing at it.
			if ok, _ := st.Groups.Delete(ctx, g.Key); !ok {
				t.Fatal("Delete should report true")
			}
			cur, _ = st.Groups.CurrentGroup(ctx, 200)
			if cur != "" {
				t.Fatalf("CurrentGroup after group delete = %q, want empty", cur)
			}
		})
	}
}

func TestSettingsStoreDefaults(t *testing.T) {
	for name, st := range openBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			min, err := st.Settings.OffsetFor(ctx, 5)
			if err != nil || min != 10 {
				t.Fatalf("default offset = (%d, %v), want 10", min, err)
			}
			if err := st.Settings.SetOffset(ctx, 5, 30); err != nil {
				t.Fatalf("SetOffset: %v", err)
			}
			min, _ = st.Settings.OffsetFor(ctx, 5)
			if min != 30 {
				t.Fatalf("offset = %d, want 30", min)
			}
		})
	}
}
