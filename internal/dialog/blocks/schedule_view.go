package blocks

import (
	"context"
	"sort"
	"time"

	"planbot/internal/dialog"
	"planbot/internal/schedule"
	"planbot/internal/transport"
	"planbot/pkg/tgui"
)

// ViewScheduleBlock renders the current group's events with their next
// occurrence and a live status line, then returns to the main menu.
type ViewScheduleBlock struct {
	deps Deps
}

func NewViewScheduleBlock(deps Deps) *ViewScheduleBlock { return &ViewScheduleBlock{deps: deps} }

func (b *ViewScheduleBlock) ID() string { return BlockViewSchedule }

func (b *ViewScheduleBlock) Enter(ctx context.Context, ec *dialog.ExecContext) error {
	g, err := currentGroup(ctx, b.deps, ec)
	if err != nil || g == nil {
		return err
	}
	defs, err := b.deps.Events.ListByGroup(ctx, g.Key)
	if err != nil {
		return err
	}

	kb := tgui.NewInline().Row(tgui.Btn("Main menu", tgui.Data("main_menu", "")))
	msg := tgui.New().Title("Schedule for " + g.Name)

	if len(defs) == 0 {
		msg.Blank().Line("No events yet.")
		text, opt := msg.Inline(kb).Build()
		return ec.Send(ctx, text, opt)
	}

	now := b.deps.now()
	type row struct {
		def *schedule.EventDefinition
		occ schedule.Occurrence
		ok  bool
	}
	rows := make([]row, 0, len(defs))
	for _, def := range defs {
		occ, ok := schedule.NextOccurrence(def, now, b.deps.Loc)
		rows = append(rows, row{def: def, occ: occ, ok: ok})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ok != rows[j].ok {
			return rows[i].ok
		}
		return rows[i].occ.Start.Before(rows[j].occ.Start)
	})

	for _, r := range rows {
		msg.Blank().Line(eventStatus(r.def, r.occ, r.ok, now))
		if r.def.Description != "" {
			msg.Line("  " + r.def.Description)
		}
		if r.def.Curator != "" {
			msg.KV("Curator", r.def.Curator)
		}
	}

	text, opt := msg.Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

// eventStatus renders one schedule line: name, when, and whether the
// occurrence is upcoming, in progress, or already over.
func eventStatus(def *schedule.EventDefinition, occ schedule.Occurrence, ok bool, now time.Time) string {
	if !ok {
		return def.Name + " — no upcoming occurrences"
	}
	when := occ.Start.Format("Mon 02 Jan 15:04") + "–" + occ.End.Format("15:04")
	switch {
	case now.Before(occ.Start):
		return def.Name + " — " + when
	case now.Before(occ.End):
		return def.Name + " — " + when + " (in progress)"
	default:
		return def.Name + " — " + when + " (finished)"
	}
}

func (b *ViewScheduleBlock) HandleMessage(ctx context.Context, _ *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *ViewScheduleBlock) HandleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, _ := tgui.Split(cb.Data)
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), b.Enter(ctx, ec)
}

func (b *ViewScheduleBlock) CaptureState() ([]byte, error) { return []byte(`{}`), nil }
func (b *ViewScheduleBlock) ApplyState([]byte) error       { return nil }
func (b *ViewScheduleBlock) OnEnd()                        {}
func (b *ViewScheduleBlock) Clone() dialog.Block           { return &ViewScheduleBlock{deps: b.deps} }
