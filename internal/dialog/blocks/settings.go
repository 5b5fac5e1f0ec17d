package blocks

import (
	"context"
	"strconv"
	"strings"

	"planbot/internal/dialog"
	"planbot/internal/transport"
	"planbot/pkg/tgui"
)

// maxOffsetMinutes bounds the pre-event reminder offset (one week).
const maxOffsetMinutes = 7 * 24 * 60

// SettingsBlock shows and updates the user's reminder offset: how many
// minutes before an event's start the pre-event reminder fires.
type SettingsBlock struct {
	deps Deps
}

func NewSettingsBlock(deps Deps) *SettingsBlock { return &SettingsBlock{deps: deps} }

func (b *SettingsBlock) ID() string { return BlockSettings }

func (b *SettingsBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	offset, err := b.deps.Settings.OffsetFor(ctx, ec.UserID)
	if err != nil {
		return err
	}
	kb := tgui.NewInline().Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
	text, opt := tgui.New().
		Title("Settings").
		Blank().
		KV("Reminder offset", strconv.Itoa(offset)+" min before start").
		Blank().
		Line("Send a number of minutes to change it.").
		Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (b *SettingsBlock) HandleMessage(ctx context.Context, msg *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	minutes, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || minutes < 0 || minutes > maxOffsetMinutes {
		return dialog.Continue(), ec.Send(ctx, "Offset must be a number of minutes between 0 and "+strconv.Itoa(maxOffsetMinutes)+".", nil)
	}
	if err := b.deps.Settings.SetOffset(ctx, ec.UserID, minutes); err != nil {
		return dialog.Result{}, err
	}
	if err := ec.Send(ctx, "Reminder offset set to "+strconv.Itoa(minutes)+" minutes.", nil); err != nil {
		return dialog.Result{}, err
	}
	return dialog.End(BlockMainMenu, nil), nil
}

func (b *SettingsBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, _ := tgui.Split(cb.Data)
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *SettingsBlock) CaptureState() ([]byte, error) { return []byte(`{}`), nil }
func (b *SettingsBlock) ApplyState([]byte) error       { return nil }
func (b *SettingsBlock) OnEnd()                        {}
func (b *SettingsBlock) Clone() dialog.Block           { return &SettingsBlock{deps: b.deps} }
