package blocks

import (
	"context"
	"encoding/json"
	"strconv"

	"planbot/internal/dialog"
	"planbot/internal/transport"
	"planbot/pkg/tgui"
)

type deleteEventState struct {
	PendingID   int64  `json:"pending_id,omitempty"`
	PendingName string `json:"pending_name,omitempty"`
}

// DeleteEventBlock picks an event from the current group and deletes it after
// an explicit confirmation.
type DeleteEventBlock struct {
	deps Deps
	st   deleteEventState
}

func NewDeleteEventBlock(deps Deps) *DeleteEventBlock { return &DeleteEventBlock{deps: deps} }

func (b *DeleteEventBlock) ID() string { return BlockDeleteEvent }

func (b *DeleteEventBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	b.st = deleteEventState{}
	g, err := currentGroup(ctx, b.deps, ec)
	if err != nil || g == nil {
		return err
	}
	_, err = eventPickList(ctx, b.deps, ec, g, "Delete event")
	return err
}

func (b *DeleteEventBlock) HandleMessage(ctx context.Context, _ *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *DeleteEventBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, payload := tgui.Split(cb.Data)

	switch action {
	case "pick":
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
		b.st.PendingID = def.ID
		b.st.PendingName = def.Name
		kb := tgui.NewInline().Row(
			tgui.Btn("Cancel", tgui.Data("cancel_delete", "")),
			tgui.Btn("Delete", tgui.Data("confirm_delete", "")),
		)
		text, opt := tgui.New().
			Line("Delete event \"" + def.Name + "\"? This cannot be undone.").
			Inline(kb).Build()
		return dialog.Continue(), ec.Send(ctx, text, opt)

	case "confirm_delete":
		if b.st.PendingID == 0 {
			return dialog.Continue(), b.Enter(ctx, ec)
		}
		ok, err := b.deps.Events.Delete(ctx, b.st.PendingID)
		if err != nil {
			return dialog.Result{}, err
		}
		text := "Event \"" + b.st.PendingName + "\" deleted."
		if !ok {
			text = "Event was already gone."
		}
		if err := ec.Send(ctx, text, nil); err != nil {
			return dialog.Result{}, err
		}
		return dialog.End(BlockMainMenu, nil), nil

	case "cancel_delete":
		b.st = deleteEventState{}
		return dialog.Continue(), b.Enter(ctx, ec)
	}

	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *DeleteEventBlock) CaptureState() ([]byte, error) { return json.Marshal(&b.st) }

func (b *DeleteEventBlock) ApplyState(blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &b.st)
}

func (b *DeleteEventBlock) OnEnd() {}

func (b *DeleteEventBlock) Clone() dialog.Block { return &DeleteEventBlock{deps: b.deps} }
