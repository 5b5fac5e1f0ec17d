package blocks

import (
	"context"

	"planbot/internal/dialog"
	"planbot/internal/transport"
	"planbot/pkg/tgui"
)

// navResult maps menu-style callback actions to block handoffs. Shared by
// every block so navigation buttons work from any screen.
func navResult(action string) (dialog.Result, bool) {
	targets := map[string]string{
		"main_menu":     BlockMainMenu,
		"view_schedule": BlockViewSchedule,
		"create_event":  BlockCreateEvent,
		"edit_event":    BlockEditEvent,
		"delete_event":  BlockDeleteEvent,
		"create_group":  BlockCreateGroup,
		"join_group":    BlockJoinGroup,
		"switch_group":  BlockSwitchGroup,
		"delete_group":  BlockDeleteGroup,
		"groups_info":   BlockGroupsInfo,
		"settings":      BlockSettings,
	}
	id, ok := targets[action]
	if !ok {
		return dialog.Result{}, false
	}
	return dialog.End(id, nil), true
}

// MainMenuBlock is the scenario entry point: a stateless inline menu that
// hands off to every workflow.
type MainMenuBlock struct {
	deps Deps
}

func NewMainMenuBlock(deps Deps) *MainMenuBlock { return &MainMenuBlock{deps: deps} }

func (b *MainMenuBlock) ID() string { return BlockMainMenu }

func (b *MainMenuBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	kb := tgui.NewInline().
		Row(tgui.Btn("📅 Schedule", tgui.Data("view_schedule", ""))).
		Row(
			tgui.Btn("New event", tgui.Data("create_event", "")),
			tgui.Btn("Edit event", tgui.Data("edit_event", "")),
		).
		Row(tgui.Btn("Delete event", tgui.Data("delete_event", ""))).
		Row(
			tgui.Btn("Your groups", tgui.Data("groups_info", "")),
			tgui.Btn("Switch group", tgui.Data("switch_group", "")),
		).
		Row(
			tgui.Btn("Create group", tgui.Data("create_group", "")),
			tgui.Btn("Join group", tgui.Data("join_group", "")),
		).
		Row(
			tgui.Btn("Delete group", tgui.Data("delete_group", "")),
			tgui.Btn("⚙ Settings", tgui.Data("settings", "")),
		)
	text, opt := tgui.New().
		Title("Group scheduling assistant").
		Blank().
		Line("Choose an action:").
		Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (b *MainMenuBlock) HandleMessage(ctx context.Context, _ *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	// Any text lands back on the menu.
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *MainMenuBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, _ := tgui.Split(cb.Data)
	if action == "main_menu" {
		return dialog.Continue(), b.Enter(ctx, ec)
	}
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *MainMenuBlock) CaptureState() ([]byte, error) { return []byte(`{}`), nil }
func (b *MainMenuBlock) ApplyState([]byte) error       { return nil }
func (b *MainMenuBlock) OnEnd()                        {}

func (b *MainMenuBlock) Clone() dialog.Block { return &MainMenuBlock{deps: b.deps} }
