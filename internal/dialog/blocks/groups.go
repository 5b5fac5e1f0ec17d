package blocks

import (
	"context"
	"encoding/json"
	"strings"

	"planbot/internal/dialog"
	"planbot/internal/transport"
	"planbot/pkg/tgui"
)

// CreateGroupBlock asks for a group name, creates the group, makes the
// creator a member, and selects it as the current group.
type CreateGroupBlock struct {
	deps Deps
}

func NewCreateGroupBlock(deps Deps) *CreateGroupBlock { return &CreateGroupBlock{deps: deps} }

func (b *CreateGroupBlock) ID() string { return BlockCreateGroup }

func (b *CreateGroupBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	kb := tgui.NewInline().Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
	text, opt := tgui.New().
		Title("New group").
		Blank().
		Line("Enter the group name:").
		Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (b *CreateGroupBlock) HandleMessage(ctx context.Context, msg *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	name := strings.TrimSpace(msg.Text)
	if name == "" {
		return dialog.Continue(), ec.Send(ctx, "Group name cannot be empty. Enter the group name:", nil)
	}
	g, err := b.deps.Groups.Create(ctx, name, ec.UserID)
	if err != nil {
		return dialog.Result{}, err
	}
	if err := b.deps.Groups.SetCurrentGroup(ctx, ec.UserID, g.Key); err != nil {
		return dialog.Result{}, err
	}
	text, opt := tgui.New().
		Line("Group \""+g.Name+"\" created and selected.").
		Blank().
		KV("Invite key", g.Key).
		Line("Share the key so others can join.").
		Build()
	if err := ec.Send(ctx, text, opt); err != nil {
		return dialog.Result{}, err
	}
	return dialog.End(BlockMainMenu, nil), nil
}

func (b *CreateGroupBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, _ := tgui.Split(cb.Data)
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *CreateGroupBlock) CaptureState() ([]byte, error) { return []byte(`{}`), nil }
func (b *CreateGroupBlock) ApplyState([]byte) error       { return nil }
func (b *CreateGroupBlock) OnEnd()                        {}
func (b *CreateGroupBlock) Clone() dialog.Block           { return &CreateGroupBlock{deps: b.deps} }

// JoinGroupBlock asks for an invite key, adds the user to that group, and
// selects it as the current group.
type JoinGroupBlock struct {
	deps Deps
}

func NewJoinGroupBlock(deps Deps) *JoinGroupBlock { return &JoinGroupBlock{deps: deps} }

func (b *JoinGroupBlock) ID() string { return BlockJoinGroup }

func (b *JoinGroupBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	kb := tgui.NewInline().Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
	text, opt := tgui.New().
		Title("Join group").
		Blank().
		Line("Enter the invite key:").
		Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (b *JoinGroupBlock) HandleMessage(ctx context.Context, msg *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	key := strings.TrimSpace(msg.Text)
	if key == "" {
		return dialog.Continue(), ec.Send(ctx, "Invite key cannot be empty. Enter the invite key:", nil)
	}
	g, err := b.deps.Groups.Join(ctx, ec.UserID, key)
	if err != nil {
		return dialog.Result{}, err
	}
	if g == nil {
		return dialog.Continue(), ec.Send(ctx, "No group with that key. Check the key and try again:", nil)
	}
	if err := b.deps.Groups.SetCurrentGroup(ctx, ec.UserID, g.Key); err != nil {
		return dialog.Result{}, err
	}
	if err := ec.Send(ctx, "You joined \""+g.Name+"\". It is now your current group.", nil); err != nil {
		return dialog.Result{}, err
	}
	return dialog.End(BlockMainMenu, nil), nil
}

func (b *JoinGroupBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, _ := tgui.Split(cb.Data)
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *JoinGroupBlock) CaptureState() ([]byte, error) { return []byte(`{}`), nil }
func (b *JoinGroupBlock) ApplyState([]byte) error       { return nil }
func (b *JoinGroupBlock) OnEnd()                        {}
func (b *JoinGroupBlock) Clone() dialog.Block           { return &JoinGroupBlock{deps: b.deps} }

// SwitchGroupBlock lists the user's groups and switches the current one.
type SwitchGroupBlock struct {
	deps Deps
}

func NewSwitchGroupBlock(deps Deps) *SwitchGroupBlock { return &SwitchGroupBlock{deps: deps} }

func (b *SwitchGroupBlock) ID() string { return BlockSwitchGroup }

func (b *SwitchGroupBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	groups, err := b.deps.Groups.ByMember(ctx, ec.UserID)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		kb := tgui.NewInline().
			Row(
				tgui.Btn("Create group", tgui.Data("create_group", "")),
				tgui.Btn("Join group", tgui.Data("join_group", "")),
			).
			Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
		text, opt := tgui.New().
			Line("You are not a member of any group yet.").
			Inline(kb).Build()
		return ec.Send(ctx, text, opt)
	}

	current, err := b.deps.Groups.CurrentGroup(ctx, ec.UserID)
	if err != nil {
		return err
	}
	kb := tgui.NewInline()
	for _, g := range groups {
		label := g.Name
		if g.Key == current {
			label = "✓ " + label
		}
		kb.Row(tgui.Btn(label, tgui.Data("pick", g.Key)))
	}
	kb.Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
	text, opt := tgui.New().
		Title("Switch group").
		Blank().
		Line("Pick your current group:").
		Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (b *SwitchGroupBlock) HandleMessage(ctx context.Context, _ *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *SwitchGroupBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, payload := tgui.Split(cb.Data)
	if action == "pick" {
		g, err := b.deps.Groups.ByKey(ctx, payload)
		if err != nil {
			return dialog.Result{}, err
		}
		if g == nil || !g.HasMember(ec.UserID) {
			return dialog.Fail("that group is not available"), nil
		}
		if err := b.deps.Groups.SetCurrentGroup(ctx, ec.UserID, g.Key); err != nil {
			return dialog.Result{}, err
		}
		if err := ec.Send(ctx, "Current group is now \""+g.Name+"\".", nil); err != nil {
			return dialog.Result{}, err
		}
		return dialog.End(BlockMainMenu, nil), nil
	}
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *SwitchGroupBlock) CaptureState() ([]byte, error) { return []byte(`{}`), nil }
func (b *SwitchGroupBlock) ApplyState([]byte) error       { return nil }
func (b *SwitchGroupBlock) OnEnd()                        {}
func (b *SwitchGroupBlock) Clone() dialog.Block           { return &SwitchGroupBlock{deps: b.deps} }

type deleteGroupState struct {
	PendingKey  string `json:"pending_key,omitempty"`
	PendingName string `json:"pending_name,omitempty"`
}

// DeleteGroupBlock deletes a group the user created, after confirmation.
// Deleting a group removes its events and clears it as anyone's current group.
type DeleteGroupBlock struct {
	deps Deps
	st   deleteGroupState
}

func NewDeleteGroupBlock(deps Deps) *DeleteGroupBlock { return &DeleteGroupBlock{deps: deps} }

func (b *DeleteGroupBlock) ID() string { return BlockDeleteGroup }

func (b *DeleteGroupBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	b.st = deleteGroupState{}
	groups, err := b.deps.Groups.CreatedBy(ctx, ec.UserID)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		kb := tgui.NewInline().Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
		text, opt := tgui.New().
			Line("You have no groups of your own. Only the creator can delete a group.").
			Inline(kb).Build()
		return ec.Send(ctx, text, opt)
	}
	kb := tgui.NewInline()
	for _, g := range groups {
		kb.Row(tgui.Btn(g.Name, tgui.Data("pick", g.Key)))
	}
	kb.Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
	text, opt := tgui.New().
		Title("Delete group").
		Blank().
		Line("Pick a group to delete:").
		Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (b *DeleteGroupBlock) HandleMessage(ctx context.Context, _ *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *DeleteGroupBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, payload := tgui.Split(cb.Data)

	switch action {
	case "pick":
		g, err := b.deps.Groups.ByKey(ctx, payload)
		if err != nil {
			return dialog.Result{}, err
		}
		if g == nil {
			return dialog.Fail("group no longer exists"), nil
		}
		if g.CreatorID != ec.UserID {
			return dialog.Fail("only the creator can delete a group"), nil
		}
		b.st.PendingKey = g.Key
		b.st.PendingName = g.Name
		kb := tgui.NewInline().Row(
			tgui.Btn("Cancel", tgui.Data("cancel_delete", "")),
			tgui.Btn("Delete", tgui.Data("confirm_delete", "")),
		)
		text, opt := tgui.New().
			Line("Delete group \"" + g.Name + "\" and all of its events? This cannot be undone.").
			Inline(kb).Build()
		return dialog.Continue(), ec.Send(ctx, text, opt)

	case "confirm_delete":
		if b.st.PendingKey == "" {
			return dialog.Continue(), b.Enter(ctx, ec)
		}
		defs, err := b.deps.Events.ListByGroup(ctx, b.st.PendingKey)
		if err != nil {
			return dialog.Result{}, err
		}
		for _, def := range defs {
			if _, err := b.deps.Events.Delete(ctx, def.ID); err != nil {
				return dialog.Result{}, err
			}
		}
		ok, err := b.deps.Groups.Delete(ctx, b.st.PendingKey)
		if err != nil {
			return dialog.Result{}, err
		}
		text := "Group \"" + b.st.PendingName + "\" deleted."
		if !ok {
			text = "Group was already gone."
		}
		if err := ec.Send(ctx, text, nil); err != nil {
			return dialog.Result{}, err
		}
		return dialog.End(BlockMainMenu, nil), nil

	case "cancel_delete":
		b.st = deleteGroupState{}
		return dialog.Continue(), b.Enter(ctx, ec)
	}

	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *DeleteGroupBlock) CaptureState() ([]byte, error) { return json.Marshal(&b.st) }

func (b *DeleteGroupBlock) ApplyState(blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &b.st)
}

func (b *DeleteGroupBlock) OnEnd() {}

func (b *DeleteGroupBlock) Clone() dialog.Block { return &DeleteGroupBlock{deps: b.deps} }

// GroupsInfoBlock shows the user's memberships, invite keys, and which group
// is currently selected.
type GroupsInfoBlock struct {
	deps Deps
}

func NewGroupsInfoBlock(deps Deps) *GroupsInfoBlock { return &GroupsInfoBlock{deps: deps} }

func (b *GroupsInfoBlock) ID() string { return BlockGroupsInfo }

func (b *GroupsInfoBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	groups, err := b.deps.Groups.ByMember(ctx, ec.UserID)
	if err != nil {
		return err
	}
	current, err := b.deps.Groups.CurrentGroup(ctx, ec.UserID)
	if err != nil {
		return err
	}

	kb := tgui.NewInline().
		Row(
			tgui.Btn("Create group", tgui.Data("create_group", "")),
			tgui.Btn("Join group", tgui.Data("join_group", "")),
		).
		Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))

	msg := tgui.New().Title("Your groups")
	if len(groups) == 0 {
		msg.Blank().Line("You are not a member of any group yet.")
	}
	for _, g := range groups {
		name := g.Name
		if g.Key == current {
			name += " (current)"
		}
		msg.Blank().KV(name, "key "+g.Key)
		if g.CreatorID == ec.UserID {
			msg.Line("  created by you")
		}
	}
	text, opt := msg.Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (b *GroupsInfoBlock) HandleMessage(ctx context.Context, _ *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *GroupsInfoBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, _ := tgui.Split(cb.Data)
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *GroupsInfoBlock) CaptureState() ([]byte, error) { return []byte(`{}`), nil }
func (b *GroupsInfoBlock) ApplyState([]byte) error       { return nil }
func (b *GroupsInfoBlock) OnEnd()                        {}
func (b *GroupsInfoBlock) Clone() dialog.Block           { return &GroupsInfoBlock{deps: b.deps} }
