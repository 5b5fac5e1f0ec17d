package blocks

import (
	"context"
	"encoding/json"

	"planbot/internal/dialog"
	"planbot/internal/schedule"
	"planbot/internal/transport"
	"planbot/pkg/tgui"
)

// CreateEventBlock asks which kind of event to create and hands off to the
// matching editor block.
type CreateEventBlock struct {
	deps Deps
}

func NewCreateEventBlock(deps Deps) *CreateEventBlock { return &CreateEventBlock{deps: deps} }

func (b *CreateEventBlock) ID() string { return BlockCreateEvent }

func (b *CreateEventBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	g, err := currentGroup(ctx, b.deps, ec)
	if err != nil || g == nil {
		return err
	}
	kb := tgui.NewInline().
		Row(
			tgui.Btn("One-time", tgui.Data("kind", string(schedule.KindOneTime))),
			tgui.Btn("Recurring", tgui.Data("kind", string(schedule.KindRecurring))),
		).
		Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
	text, opt := tgui.New().
		Title("New event in " + g.Name).
		Blank().
		Line("What kind of event is it?").
		Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (b *CreateEventBlock) HandleMessage(ctx context.Context, _ *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *CreateEventBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, payload := tgui.Split(cb.Data)
	if action == "kind" {
		switch schedule.EventKind(payload) {
		case schedule.KindOneTime:
			return dialog.End(BlockCreateOneTime, nil), nil
		case schedule.KindRecurring:
			return dialog.End(BlockCreateRecur, nil), nil
		}
	}
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *CreateEventBlock) CaptureState() ([]byte, error) { return []byte(`{}`), nil }
func (b *CreateEventBlock) ApplyState([]byte) error       { return nil }
func (b *CreateEventBlock) OnEnd()                        {}
func (b *CreateEventBlock) Clone() dialog.Block           { return &CreateEventBlock{deps: b.deps} }

// createGroupKey resolves the user's current group for a commit, rendering
// the "no group" screen when nothing is selected.
func createGroupKey(deps Deps) func(ctx context.Context, ec *dialog.ExecContext) (string, bool, error) {
	return func(ctx context.Context, ec *dialog.ExecContext) (string, bool, error) {
		g, err := currentGroup(ctx, deps, ec)
		if err != nil {
			return "", false, err
		}
		if g == nil {
			return "", false, nil
		}
		return g.Key, true, nil
	}
}

func createCommit(deps Deps) func(ctx context.Context, ec *dialog.ExecContext, def *schedule.EventDefinition) (string, error) {
	return func(ctx context.Context, _ *dialog.ExecContext, def *schedule.EventDefinition) (string, error) {
		if _, err := deps.Events.Create(ctx, def); err != nil {
			return "", err
		}
		return "Event \"" + def.Name + "\" created.", nil
	}
}

// CreateOneTimeEventBlock is the field editor for a new one-time event.
type CreateOneTimeEventBlock struct {
	deps Deps
	ed   eventEditor
}

func NewCreateOneTimeEventBlock(deps Deps) *CreateOneTimeEventBlock {
	b := &CreateOneTimeEventBlock{deps: deps}
	b.ed = eventEditor{
		deps:     deps,
		title:    "New one-time event",
		groupKey: createGroupKey(deps),
		commit:   createCommit(deps),
	}
	b.ed.init(schedule.KindOneTime)
	return b
}

func (b *CreateOneTimeEventBlock) ID() string { return BlockCreateOneTime }

func (b *CreateOneTimeEventBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	b.ed.init(schedule.KindOneTime)
	return b.ed.renderMenu(ctx, ec)
}

func (b *CreateOneTimeEventBlock) HandleMessage(ctx context.Context, msg *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	return b.ed.handleMessage(ctx, msg, ec)
}

func (b *CreateOneTimeEventBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	return b.ed.handleCallback(ctx, cb, ec)
}

func (b *CreateOneTimeEventBlock) CaptureState() ([]byte, error) { return json.Marshal(&b.ed.st) }

func (b *CreateOneTimeEventBlock) ApplyState(blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &b.ed.st)
}

func (b *CreateOneTimeEventBlock) OnEnd() {}

func (b *CreateOneTimeEventBlock) Clone() dialog.Block { return NewCreateOneTimeEventBlock(b.deps) }

// CreateRecurringEventBlock is the field editor for a new recurring event.
type CreateRecurringEventBlock struct {
	deps Deps
	ed   eventEditor
}

func NewCreateRecurringEventBlock(deps Deps) *CreateRecurringEventBlock {
	b := &CreateRecurringEventBlock{deps: deps}
	b.ed = eventEditor{
		deps:     deps,
		title:    "New recurring event",
		groupKey: createGroupKey(deps),
		commit:   createCommit(deps),
	}
	b.ed.init(schedule.KindRecurring)
	return b
}

func (b *CreateRecurringEventBlock) ID() string { return BlockCreateRecur }

func (b *CreateRecurringEventBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	b.ed.init(schedule.KindRecurring)
	return b.ed.renderMenu(ctx, ec)
}

func (b *CreateRecurringEventBlock) HandleMessage(ctx context.Context, msg *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	return b.ed.handleMessage(ctx, msg, ec)
}

func (b *CreateRecurringEventBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	return b.ed.handleCallback(ctx, cb, ec)
}

func (b *CreateRecurringEventBlock) CaptureState() ([]byte, error) { return json.Marshal(&b.ed.st) }

func (b *CreateRecurringEventBlock) ApplyState(blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &b.ed.st)
}

func (b *CreateRecurringEventBlock) OnEnd() {}

func (b *CreateRecurringEventBlock) Clone() dialog.Block { return NewCreateRecurringEventBlock(b.deps) }
