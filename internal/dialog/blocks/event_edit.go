package blocks

import (
	"context"
	"encoding/json"
	"strconv"

	"planbot/internal/dialog"
	"planbot/internal/schedule"
	"planbot/internal/transport"
	"planbot/pkg/tgui"
)

// draftFromDefinition seeds an editor draft with a stored definition.
func draftFromDefinition(def *schedule.EventDefinition) eventDraft {
	d := eventDraft{
		EventID:     def.ID,
		GroupKey:    def.GroupKey,
		Kind:        def.Kind,
		Name:        def.Name,
		Description: def.Description,
		Curator:     def.Curator,
	}
	switch def.Kind {
	case schedule.KindOneTime:
		if f := def.OneTime; f != nil {
			d.Date = f.Date
			d.StartTime = f.StartTime
			d.EndTime = f.EndTime
		}
	case schedule.KindRecurring:
		if f := def.Recurring; f != nil {
			d.StartDate = f.StartDate
			d.Days = append([]int(nil), f.DaysOfWeek...)
			d.StartTime = f.StartTime
			d.EndTime = f.EndTime
			d.DeleteAfter = f.DeleteAfter
		}
	}
	return d
}

// eventPickList renders the group's events as pick buttons. Returns false
// when the group has no events (a screen was already sent).
func eventPickList(ctx context.Context, deps Deps, ec *dialog.ExecContext, g *schedule.Group, title string) (bool, error) {
	defs, err := deps.Events.ListByGroup(ctx, g.Key)
	if err != nil {
		return false, err
	}
	if len(defs) == 0 {
		kb := tgui.NewInline().
			Row(tgui.Btn("New event", tgui.Data("create_event", ""))).
			Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
		text, opt := tgui.New().
			Line("Group " + g.Name + " has no events yet.").
			Inline(kb).Build()
		return false, ec.Send(ctx, text, opt)
	}

	kb := tgui.NewInline()
	for _, def := range defs {
		kb.Row(tgui.Btn(def.Name, tgui.Data("pick", strconv.FormatInt(def.ID, 10))))
	}
	kb.Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
	text, opt := tgui.New().
		Title(title).
		Blank().
		Line("Pick an event:").
		Inline(kb).Build()
	return true, ec.Send(ctx, text, opt)
}

type editEventState struct {
	Picked bool        `json:"picked"`
	Editor editorState `json:"editor"`
}

// EditEventBlock lets the user pick an event from the current group and
// rework its fields through the shared editor. Saving replaces the stored
// definition, which also resets its reminder ledger.
type EditEventBlock struct {
	deps Deps
	st   editEventState
	ed   eventEditor
}

func NewEditEventBlock(deps Deps) *EditEventBlock {
	b := &EditEventBlock{deps: deps}
	b.ed = eventEditor{
		deps:  deps,
		title: "Editing event",
		groupKey: func(_ context.Context, _ *dialog.ExecContext) (string, bool, error) {
			return b.ed.st.Draft.GroupKey, b.ed.st.Draft.GroupKey != "", nil
		},
		commit: func(ctx context.Context, _ *dialog.ExecContext, def *schedule.EventDefinition) (string, error) {
			ok, err := deps.Events.Update(ctx, def)
			if err != nil {
				return "", err
			}
			if !ok {
				return "Event no longer exists.", nil
			}
			return "Event \"" + def.Name + "\" updated.", nil
		},
	}
	return b
}

func (b *EditEventBlock) ID() string { return BlockEditEvent }

func (b *EditEventBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	b.st = editEventState{}
	g, err := currentGroup(ctx, b.deps, ec)
	if err != nil || g == nil {
		return err
	}
	_, err = eventPickList(ctx, b.deps, ec, g, "Edit event")
	return err
}

func (b *EditEventBlock) HandleMessage(ctx context.Context, msg *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	if b.st.Picked {
		b.ed.st = b.st.Editor
		res, err := b.ed.handleMessage(ctx, msg, ec)
		b.st.Editor = b.ed.st
		return res, err
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *EditEventBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	if b.st.Picked {
		b.ed.st = b.st.Editor
		res, err := b.ed.handleCallback(ctx, cb, ec)
		b.st.Editor = b.ed.st
		return res, err
	}

	action, payload := tgui.Split(cb.Data)
	if action == "pick" {
		id, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return dialog.Continue(), b.Enter(ctx, ec)
		}
		def, err := b.deps.Events.Get(ctx, id)
		if err != nil {
			return dialog.Result{}, err
		}
		if def == nil {
			return dialog.Fail("event no longer exists"), nil
		}
		b.st.Picked = true
		b.st.Editor = editorState{Phase: phaseMenu, Draft: draftFromDefinition(def)}
		b.ed.st = b.st.Editor
		return dialog.Continue(), b.ed.renderMenu(ctx, ec)
	}
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *EditEventBlock) CaptureState() ([]byte, error) { return json.Marshal(&b.st) }

func (b *EditEventBlock) ApplyState(blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &b.st)
}

func (b *EditEventBlock) OnEnd() {}

func (b *EditEventBlock) Clone() dialog.Block { return NewEditEventBlock(b.deps) }
