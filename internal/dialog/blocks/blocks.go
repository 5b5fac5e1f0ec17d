// Package blocks contains the concrete conversational steps of the
// scheduling assistant: the main menu, event creation/editing/deletion,
// group management, the schedule view, and reminder settings.
package blocks

import (
	"context"
	"time"

	"planbot/internal/dialog"
	"planbot/internal/schedule"
	"planbot/internal/storage"
	"planbot/pkg/tgui"
)

// Block identifiers double as the conversation-state storage keys.
const (
	BlockMainMenu       = "main_menu"
	BlockCreateEvent    = "create_event"
	BlockCreateOneTime  = "create_one_time_event"
	BlockCreateRecur    = "create_recurring_event"
	BlockEditEvent      = "edit_event"
	BlockDeleteEvent    = "delete_event"
	BlockViewSchedule   = "view_schedule"
	BlockCreateGroup    = "create_group"
	BlockJoinGroup      = "join_group"
	BlockSwitchGroup    = "switch_group"
	BlockDeleteGroup    = "delete_group"
	BlockGroupsInfo     = "groups_info"
	BlockSettings       = "settings"
)

// Deps is everything a block needs besides its own state. Prototypes share
// one Deps value; clones copy it by value (stores are interfaces).
type Deps struct {
	Events   storage.EventStore
	Groups   storage.GroupStore
	Settings storage.SettingsStore

	// Loc is the single civil timezone all date/time math uses.
	Loc *time.Location
	// Now is injectable for tests; defaults to time.Now in NewScenario.
	Now func() time.Time
}

func (d Deps) now() time.Time { return d.Now().In(d.Loc) }

// NewScenario wires the default scenario: every block registered, main menu
// as the entry point. Registration failures are composition defects.
func NewScenario(deps Deps) (*dialog.Scenario, error) {
	if deps.Loc == nil {
		deps.Loc = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	sc := dialog.NewScenario("default")
	if err := sc.RegisterInitial(NewMainMenuBlock(deps)); err != nil {
		return nil, err
	}
	all := []dialog.Block{
		NewCreateEventBlock(deps),
		NewCreateOneTimeEventBlock(deps),
		NewCreateRecurringEventBlock(deps),
		NewEditEventBlock(deps),
		NewDeleteEventBlock(deps),
		NewViewScheduleBlock(deps),
		NewCreateGroupBlock(deps),
		NewJoinGroupBlock(deps),
		NewSwitchGroupBlock(deps),
		NewDeleteGroupBlock(deps),
		NewGroupsInfoBlock(deps),
		NewSettingsBlock(deps),
	}
	for _, b := range all {
		if err := sc.Register(b); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// currentGroup resolves the user's selected group. When nothing is selected
// (or the selection points at a deleted group) it renders a short menu
// offering the group workflows and returns nil.
func currentGroup(ctx context.Context, deps Deps, ec *dialog.ExecContext) (*schedule.Group, error) {
	key, err := deps.Groups.CurrentGroup(ctx, ec.UserID)
	if err != nil {
		return nil, err
	}
	var g *schedule.Group
	if key != "" {
		if g, err = deps.Groups.ByKey(ctx, key); err != nil {
			return nil, err
		}
	}
	if g == nil {
		kb := tgui.NewInline().
			Row(tgui.Btn("Main menu", tgui.Data("main_menu", ""))).
			Row(
				tgui.Btn("Your groups", tgui.Data("switch_group", "")),
				tgui.Btn("Create group", tgui.Data("create_group", "")),
			).
			Row(tgui.Btn("Join group by key", tgui.Data("join_group", "")))
		text, opt := tgui.New().
			Line("No group selected. Pick, join or create a group first.").
			Inline(kb).Build()
		return nil, ec.Send(ctx, text, opt)
	}
	return g, nil
}
