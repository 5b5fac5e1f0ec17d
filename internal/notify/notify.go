// Package notify runs the reminder engine: a tick-driven pass over all event
// definitions that delivers pre/start/end notifications to group members,
// records delivery in the per-event ledger, and retires spent definitions.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"planbot/internal/schedule"
	"planbot/internal/storage"
	"planbot/internal/transport"
	logx "planbot/pkg/logx"
	"planbot/pkg/tgui"
)

// Sender is the outbound half of the transport the reminder engine needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Config struct {
	// Tick is the pass schedule (cron, duration, or HH:MM). Default "1m".
	Tick string
	// Grace delays one-time retirement past the event end so the end-phase
	// reminder always gets a tick to fire in. Default 5m.
	Grace time.Duration
	// SendRate/SendBurst throttle outbound reminders (messages per second).
	SendRate  float64
	SendBurst int
}

func (c *Config) applyDefaults() {
	if c.Tick == "" {
		c.Tick = "1m"
	}
	if c.Grace <= 0 {
		c.Grace = 5 * time.Minute
	}
	if c.SendRate <= 0 {
		c.SendRate = 25
	}
	if c.SendBurst <= 0 {
		c.SendBurst = 5
	}
}

// Deps are the collaborators a Service needs. Now is injectable for tests and
// defaults to time.Now.
type Deps struct {
	Events   storage.EventStore
	Groups   storage.GroupStore
	Settings storage.SettingsStore
	Sender   Sender
	Loc      *time.Location
	Log      logx.Logger
	Now      func() time.Time
}

// Service drives reminder passes. One pass (Tick) walks every definition;
// between passes it sleeps according to the configured schedule.
type Service struct {
	events   storage.EventStore
	groups   storage.GroupStore
	settings storage.SettingsStore
	sender   Sender
	loc      *time.Location
	log      logx.Logger
	now      func() time.Time

	sched   cron.Schedule
	window  time.Duration
	grace   time.Duration
	limiter *rate.Limiter
}

func New(cfg Config, deps Deps) (*Service, error) {
	cfg.applyDefaults()
	if deps.Events == nil || deps.Groups == nil || deps.Settings == nil || deps.Sender == nil {
		return nil, fmt.Errorf("notify: missing dependencies")
	}
	if deps.Loc == nil {
		deps.Loc = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}

	spec, err := ParseTick(cfg.Tick)
	if err != nil {
		return nil, err
	}
	sched, err := spec.Schedule()
	if err != nil {
		return nil, err
	}

	return &Service{
		events:   deps.Events,
		groups:   deps.Groups,
		settings: deps.Settings,
		sender:   deps.Sender,
		loc:      deps.Loc,
		log:      deps.Log.With(logx.String("svc", "notify")),
		now:      deps.Now,
		sched:    sched,
		window:   spec.Window(),
		grace:    cfg.Grace,
		limiter:  rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
	}, nil
}

// Run blocks until ctx is cancelled, executing one reminder pass per tick.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("reminder engine started", logx.Duration("window", s.window))
	for {
		next := s.sched.Next(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("reminder engine stopped")
			return nil
		case <-timer.C:
		}
		if err := s.Tick(ctx); err != nil {
			s.log.Error("reminder pass failed", logx.Err(err))
		}
	}
}

// Tick executes one reminder pass at the current clock reading. Per-event
// failures are logged and do not abort the pass.
func (s *Service) Tick(ctx context.Context) error {
	now := s.now().In(s.loc)
	defs, err := s.events.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	for _, def := range defs {
		if err := s.processEvent(ctx, def, now); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("process event failed", logx.Int64("event", def.ID), logx.Err(err))
		}
	}
	return nil
}

func (s *Service) processEvent(ctx context.Context, def *schedule.EventDefinition, now time.Time) error {
	group, err := s.groups.ByKey(ctx, def.GroupKey)
	if err != nil {
		return err
	}
	if group == nil {
		// The group was deleted out from under the event. Keep the row; the
		// operator may want to inspect it.
		s.log.Warn("event references missing group",
			logx.Int64("event", def.ID), logx.String("group", def.GroupKey))
		return nil
	}

	if s.retirementDue(def, now) {
		if _, err := s.events.Delete(ctx, def.ID); err != nil {
			return err
		}
		s.log.Info("event retired", logx.Int64("event", def.ID), logx.String("name", def.Name))
		return nil
	}

	occ, ok := schedule.NextOccurrence(def, now, s.loc)
	if !ok {
		return nil
	}

	dirty := false
	for _, member := range group.Members {
		offset, err := s.settings.OffsetFor(ctx, member)
		if err != nil {
			s.log.Warn("load reminder offset failed", logx.Int64("user", member), logx.Err(err))
			continue
		}
		fires := []struct {
			phase schedule.Phase
			at    time.Time
		}{
			{schedule.PhasePre, occ.Start.Add(-time.Duration(offset) * time.Minute)},
			{schedule.PhaseStart, occ.Start},
			{schedule.PhaseEnd, occ.End},
		}
		for _, f := range fires {
			if def.Fired(member, f.phase) {
				// A set flag whose fire time is still ahead belongs to a past
				// occurrence of a recurring event; rearm it.
				if def.Kind == schedule.KindRecurring && f.at.After(now) {
					def.ClearFired(member, f.phase)
					dirty = true
				}
				continue
			}
			if f.at.After(now) || !now.Before(f.at.Add(s.window)) {
				continue
			}
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := s.deliver(ctx, member, def, occ, f.phase, offset); err != nil {
				// Marked regardless: a flaky transport must not spam the user
				// with retries on every subsequent tick.
				s.log.Warn("reminder delivery failed",
					logx.Int64("user", member), logx.Int64("event", def.ID),
					logx.String("phase", string(f.phase)), logx.Err(err))
			}
			def.MarkFired(member, f.phase)
			dirty = true
		}
	}

	if dirty {
		ok, err := s.events.Update(ctx, def)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Debug("event vanished during pass", logx.Int64("event", def.ID))
		}
	}
	return nil
}

// retirementDue reports whether def has outlived its useful life: one-time
// events a grace period after their end, recurring events the day after their
// delete-after date.
func (s *Service) retirementDue(def *schedule.EventDefinition, now time.Time) bool {
	switch def.Kind {
	case schedule.KindOneTime:
		if def.OneTime == nil {
			return false
		}
		day, err := schedule.ParseCivilDate(def.OneTime.Date, s.loc)
		if err != nil {
			return false
		}
		eh, em, err := schedule.ParseClock(def.OneTime.EndTime)
		if err != nil {
			return false
		}
		end := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, s.loc)
		return !now.Before(end.Add(s.grace))
	case schedule.KindRecurring:
		if def.Recurring == nil || def.Recurring.DeleteAfter == "" {
			return false
		}
		last, err := schedule.ParseCivilDate(def.Recurring.DeleteAfter, s.loc)
		if err != nil {
			return false
		}
		return !now.Before(last.AddDate(0, 0, 1))
	}
	return false
}

func (s *Service) deliver(ctx context.Context, member int64, def *schedule.EventDefinition, occ schedule.Occurrence, phase schedule.Phase, offset int) error {
	var headline string
	switch phase {
	case schedule.PhasePre:
		headline = fmt.Sprintf("🔔 %s starts at %s (in %d min)", def.Name, occ.Start.In(s.loc).Format("15:04"), offset)
	case schedule.PhaseStart:
		headline = fmt.Sprintf("▶️ %s is starting now", def.Name)
	case schedule.PhaseEnd:
		headline = fmt.Sprintf("⏹ %s has ended", def.Name)
	}

	msg := tgui.New().Line(headline)
	if phase != schedule.PhaseEnd {
		if def.Description != "" {
			msg.Line(def.Description)
		}
		if def.Curator != "" {
			msg.KV("Curator", def.Curator)
		}
	}
	text, opt := msg.Build()
	_, err := s.sender.SendText(ctx, transport.ChatTarget{ChatID: member}, text, opt)
	return err
}
