package schedule

// Fired reports whether the given reminder phase was already delivered to the
// user for this definition. Unknown users/phases read as false.
func (d *EventDefinition) Fired(userID int64, phase Phase) bool {
	if d.Ledger == nil {
		return false
	}
	fl := d.Ledger[userID]
	if fl == nil {
		return false
	}
	switch phase {
	case PhasePre:
		return fl.Pre
	case PhaseStart:
		return fl.Start
	case PhaseEnd:
		return fl.End
	}
	return false
}

// MarkFired sets the delivered flag for (userID, phase). Idempotent and
// monotonic: flags only ever go true, and repeat calls are no-ops.
// Persisting the mutation is the caller's responsibility.
func (d *EventDefinition) MarkFired(userID int64, phase Phase) {
	if d.Ledger == nil {
		d.Ledger = map[int64]*PhaseFlags{}
	}
	fl := d.Ledger[userID]
	if fl == nil {
		fl = &PhaseFlags{}
		d.Ledger[userID] = fl
	}
	switch phase {
	case PhasePre:
		fl.Pre = true
	case PhaseStart:
		fl.Start = true
	case PhaseEnd:
		fl.End = true
	}
}

// ClearFired resets the delivered flag for (userID, phase). The reminder
// service uses it to rearm recurring definitions for their next occurrence.
func (d *EventDefinition) ClearFired(userID int64, phase Phase) {
	if d.Ledger == nil {
		return
	}
	fl := d.Ledger[userID]
	if fl == nil {
		return
	}
	switch phase {
	case PhasePre:
		fl.Pre = false
	case PhaseStart:
		fl.Start = false
	case PhaseEnd:
		fl.End = false
	}
}
