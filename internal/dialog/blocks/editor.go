package blocks

import (
	"context"
	"strconv"
	"strings"

	"planbot/internal/dialog"
	"planbot/internal/schedule"
	"planbot/internal/transport"
	"planbot/pkg/tgui"
)

type editorPhase string

const (
	phaseMenu          editorPhase = "menu"
	phaseAwaitingInput editorPhase = "awaiting_input"
	phaseConfirmation  editorPhase = "confirmation"
)

// eventDraft is the record under construction across several inbound events.
type eventDraft struct {
	EventID     int64              `json:"event_id,omitempty"`
	GroupKey    string             `json:"group_key,omitempty"`
	Kind        schedule.EventKind `json:"kind"`
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
	Curator     string             `json:"curator,omitempty"`
	Date        string             `json:"date,omitempty"`
	StartDate   string             `json:"start_date,omitempty"`
	Days        []int              `json:"days,omitempty"`
	StartTime   string             `json:"start_time,omitempty"`
	EndTime     string             `json:"end_time,omitempty"`
	DeleteAfter string             `json:"delete_after,omitempty"`
}

type editorState struct {
	Phase   editorPhase `json:"phase"`
	Editing string      `json:"editing_field,omitempty"`
	Draft   eventDraft  `json:"draft"`
}

type fieldSpec struct {
	key      string
	label    string
	prompt   string
	optional bool
	get      func(*eventDraft) string
	set      func(deps Deps, draft *eventDraft, input string) error
}

func setNonEmpty(assign func(*eventDraft, string)) func(Deps, *eventDraft, string) error {
	return func(_ Deps, d *eventDraft, input string) error {
		input = strings.TrimSpace(input)
		if input == "" {
			return &schedule.ValidationError{Reason: "value cannot be empty"}
		}
		assign(d, input)
		return nil
	}
}

func setFutureDate(assign func(*eventDraft, string)) func(Deps, *eventDraft, string) error {
	return func(deps Deps, d *eventDraft, input string) error {
		input = strings.TrimSpace(input)
		if _, err := schedule.ParseFutureCivilDate(input, deps.now(), deps.Loc); err != nil {
			return err
		}
		assign(d, input)
		return nil
	}
}

func setClock(assign func(*eventDraft, string)) func(Deps, *eventDraft, string) error {
	return func(_ Deps, d *eventDraft, input string) error {
		input = strings.TrimSpace(input)
		if _, _, err := schedule.ParseClock(input); err != nil {
			return err
		}
		assign(d, input)
		return nil
	}
}

func formatDays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// editorFields returns the field set for a draft kind, in display order.
func editorFields(kind schedule.EventKind) []fieldSpec {
	common := []fieldSpec{
		{
			key: "name", label: "Name", prompt: "Enter the event name:",
			get: func(d *eventDraft) string { return d.Name },
			set: setNonEmpty(func(d *eventDraft, v string) { d.Name = v }),
		},
		{
			key: "description", label: "Description", prompt: "Enter the event description:",
			get: func(d *eventDraft) string { return d.Description },
			set: setNonEmpty(func(d *eventDraft, v string) { d.Description = v }),
		},
		{
			key: "curator", label: "Curator", prompt: "Enter the curator's name:",
			get: func(d *eventDraft) string { return d.Curator },
			set: setNonEmpty(func(d *eventDraft, v string) { d.Curator = v }),
		},
	}

	if kind == schedule.KindOneTime {
		return append(common, []fieldSpec{
			{
				key: "date", label: "Date", prompt: "Enter the event date (YYYY-MM-DD):",
				get: func(d *eventDraft) string { return d.Date },
				set: setFutureDate(func(d *eventDraft, v string) { d.Date = v }),
			},
			{
				key: "start_time", label: "Start time", prompt: "Enter the start time (HH:MM):",
				get: func(d *eventDraft) string { return d.StartTime },
				set: setClock(func(d *eventDraft, v string) { d.StartTime = v }),
			},
			{
				key: "end_time", label: "End time", prompt: "Enter the end time (HH:MM):",
				get: func(d *eventDraft) string { return d.EndTime },
				set: setClock(func(d *eventDraft, v string) { d.EndTime = v }),
			},
		}...)
	}

	return append(common, []fieldSpec{
		{
			key: "start_date", label: "First date", prompt: "Enter the first date (YYYY-MM-DD):",
			optional: true,
			get:      func(d *eventDraft) string { return d.StartDate },
			set:      setFutureDate(func(d *eventDraft, v string) { d.StartDate = v }),
		},
		{
			key: "days", label: "Weekdays", prompt: "Enter weekdays as numbers 0-6 (0=Sunday), comma-separated:",
			get: func(d *eventDraft) string { return formatDays(d.Days) },
			set: func(_ Deps, d *eventDraft, input string) error {
				days, err := schedule.ParseWeekdays(input)
				if err != nil {
					return err
				}
				d.Days = days
				return nil
			},
		},
		{
			key: "start_time", label: "Start time", prompt: "Enter the start time (HH:MM):",
			get: func(d *eventDraft) string { return d.StartTime },
			set: setClock(func(d *eventDraft, v string) { d.StartTime = v }),
		},
		{
			key: "end_time", label: "End time", prompt: "Enter the end time (HH:MM):",
			get: func(d *eventDraft) string { return d.EndTime },
			set: setClock(func(d *eventDraft, v string) { d.EndTime = v }),
		},
		{
			key: "delete_after", label: "Delete after", prompt: "Enter the last date (YYYY-MM-DD):",
			optional: true,
			get:      func(d *eventDraft) string { return d.DeleteAfter },
			set:      setFutureDate(func(d *eventDraft, v string) { d.DeleteAfter = v }),
		},
	}...)
}

// eventEditor is the menu / awaiting_input / confirmation state machine that
// the create and edit blocks share. Wrappers supply where the committed
// definition goes (create vs update) and which group it targets.
type eventEditor struct {
	deps  Deps
	title string
	st    editorState

	// groupKey resolves the target group. ok=false means the user was
	// already shown the "no group" screen.
	groupKey func(ctx context.Context, ec *dialog.ExecContext) (key string, ok bool, err error)
	// commit stores the validated definition and returns the success text.
	commit func(ctx context.Context, ec *dialog.ExecContext, def *schedule.EventDefinition) (string, error)
}

func (e *eventEditor) init(kind schedule.EventKind) {
	e.st = editorState{Phase: phaseMenu, Draft: eventDraft{Kind: kind}}
}

func (e *eventEditor) fields() []fieldSpec { return editorFields(e.st.Draft.Kind) }

func (e *eventEditor) fieldByKey(key string) *fieldSpec {
	fs := e.fields()
	for i := range fs {
		if fs[i].key == key {
			return &fs[i]
		}
	}
	return nil
}

func (e *eventEditor) renderMenu(ctx context.Context, ec *dialog.ExecContext) error {
	msg := tgui.New().Title(e.title).Blank()
	var btns []struct{ label, key string }
	for _, f := range e.fields() {
		v := f.get(&e.st.Draft)
		display := v
		if display == "" {
			display = "not set"
		}
		msg.KV(f.label, display)
		btns = append(btns, struct{ label, key string }{f.label, f.key})
	}
	msg.Blank().Line("Choose an action:")

	kb := tgui.NewInline()
	for i := 0; i < len(btns); i += 2 {
		if i+1 < len(btns) {
			kb.Row(
				tgui.Btn("Set "+strings.ToLower(btns[i].label), tgui.Data("set", btns[i].key)),
				tgui.Btn("Set "+strings.ToLower(btns[i+1].label), tgui.Data("set", btns[i+1].key)),
			)
		} else {
			kb.Row(tgui.Btn("Set "+strings.ToLower(btns[i].label), tgui.Data("set", btns[i].key)))
		}
	}
	kb.Row(
		tgui.Btn("Cancel", tgui.Data("cancel_event", "")),
		tgui.Btn("Save event", tgui.Data("submit_event", "")),
	)

	text, opt := msg.Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

func (e *eventEditor) renderConfirmation(ctx context.Context, ec *dialog.ExecContext) error {
	msg := tgui.New().Title("Confirm the event:").Blank()
	for _, f := range e.fields() {
		if v := f.get(&e.st.Draft); v != "" {
			msg.KV(f.label, v)
		}
	}
	kb := tgui.NewInline().Row(
		tgui.Btn("Back to editor", tgui.Data("back_to_menu", "")),
		tgui.Btn("Confirm", tgui.Data("confirm_commit", "")),
	)
	text, opt := msg.Inline(kb).Build()
	return ec.Send(ctx, text, opt)
}

// buildDefinition assembles and validates the draft for groupKey.
// Failures are ValidationErrors with user-facing reasons.
func (e *eventEditor) buildDefinition(groupKey string) (*schedule.EventDefinition, error) {
	for _, f := range e.fields() {
		if !f.optional && strings.TrimSpace(f.get(&e.st.Draft)) == "" {
			return nil, &schedule.ValidationError{Reason: "not all required fields are set (" + f.label + " is missing)"}
		}
	}

	d := &e.st.Draft
	def := &schedule.EventDefinition{
		ID:          d.EventID,
		GroupKey:    groupKey,
		Name:        d.Name,
		Description: d.Description,
		Curator:     d.Curator,
		Kind:        d.Kind,
	}
	switch d.Kind {
	case schedule.KindOneTime:
		def.OneTime = &schedule.OneTimeFields{Date: d.Date, StartTime: d.StartTime, EndTime: d.EndTime}
	case schedule.KindRecurring:
		def.Recurring = &schedule.RecurringFields{
			StartDate:   d.StartDate,
			DaysOfWeek:  append([]int(nil), d.Days...),
			StartTime:   d.StartTime,
			EndTime:     d.EndTime,
			DeleteAfter: d.DeleteAfter,
		}
	}
	if err := schedule.ValidateDefinition(def, e.deps.now(), e.deps.Loc); err != nil {
		return nil, err
	}
	return def, nil
}

// handleMessage consumes text input. In awaiting_input the text is the value
// for the field being edited; invalid input re-prompts and stays put.
func (e *eventEditor) handleMessage(ctx context.Context, msg *transport.Message, ec *dialog.ExecContext) (dialog.Result, error) {
	if e.st.Phase == phaseAwaitingInput && e.st.Editing != "" {
		f := e.fieldByKey(e.st.Editing)
		if f == nil {
			// Stale editing marker; recover to the menu.
			e.st.Phase = phaseMenu
			e.st.Editing = ""
			return dialog.Continue(), e.renderMenu(ctx, ec)
		}
		if err := f.set(e.deps, &e.st.Draft, msg.Text); err != nil {
			if schedule.IsValidation(err) {
				return dialog.Continue(), ec.Send(ctx, "Error: "+err.Error()+"\n"+f.prompt, nil)
			}
			return dialog.Result{}, err
		}
		e.st.Phase = phaseMenu
		e.st.Editing = ""
		return dialog.Continue(), e.renderMenu(ctx, ec)
	}
	return dialog.Continue(), e.renderMenu(ctx, ec)
}

// handleCallback consumes button presses for all three editor phases.
func (e *eventEditor) handleCallback(ctx context.Context, cb *transport.Callback, ec *dialog.ExecContext) (dialog.Result, error) {
	action, payload := tgui.Split(cb.Data)

	if e.st.Phase == phaseConfirmation {
		switch action {
		case "back_to_menu":
			e.st.Phase = phaseMenu
			return dialog.Continue(), e.renderMenu(ctx, ec)
		case "confirm_commit":
			key, ok, err := e.groupKey(ctx, ec)
			if err != nil {
				return dialog.Result{}, err
			}
			if !ok {
				return dialog.Continue(), nil
			}
			def, err := e.buildDefinition(key)
			if err != nil {
				if schedule.IsValidation(err) {
					return dialog.Fail(err.Error()), nil
				}
				return dialog.Result{}, err
			}
			text, err := e.commit(ctx, ec, def)
			if err != nil {
				return dialog.Result{}, err
			}
			if err := ec.Send(ctx, text, nil); err != nil {
				return dialog.Result{}, err
			}
			return dialog.End(BlockMainMenu, nil), nil
		}
		if res, ok := navResult(action); ok {
			return res, nil
		}
		e.st.Phase = phaseMenu
		return dialog.Continue(), e.renderMenu(ctx, ec)
	}

	switch action {
	case "set":
		f := e.fieldByKey(payload)
		if f == nil {
			return dialog.Continue(), e.renderMenu(ctx, ec)
		}
		e.st.Phase = phaseAwaitingInput
		e.st.Editing = f.key
		return dialog.Continue(), ec.Send(ctx, f.prompt, nil)
	case "cancel_event":
		if err := ec.Send(ctx, "Event editing cancelled.", nil); err != nil {
			return dialog.Result{}, err
		}
		return dialog.End(BlockMainMenu, nil), nil
	case "submit_event":
		key, ok, err := e.groupKey(ctx, ec)
		if err != nil {
			return dialog.Result{}, err
		}
		if !ok {
			return dialog.Continue(), nil
		}
		if _, err := e.buildDefinition(key); err != nil {
			if schedule.IsValidation(err) {
				if err := ec.Send(ctx, "Error: "+err.Error(), nil); err != nil {
					return dialog.Result{}, err
				}
				return dialog.Continue(), e.renderMenu(ctx, ec)
			}
			return dialog.Result{}, err
		}
		e.st.Phase = phaseConfirmation
		return dialog.Continue(), e.renderConfirmation(ctx, ec)
	}
	if res, ok := navResult(action); ok {
		return res, nil
	}
	return dialog.Continue(), e.renderMenu(ctx, ec)
}
