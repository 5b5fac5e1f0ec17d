package notify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TickSpec is a parsed reminder-pass schedule. Supported forms:
//   - cron (crontab.guru-style): "*/5 * * * *", "@hourly", "@every 30s"
//   - Go duration: "1m", "2h30m"
//   - HH:MM interval: "00:05" (5 minutes), "01:30" (90 minutes)
//
// A "cron:" or "every:" prefix forces the interpretation.
type TickSpec struct {
	Cron  string        // set for cron form
	Every time.Duration // set for interval forms
}

var tickParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reTickHHMM = regexp.MustCompile(`^\d{1,3}:\d{2}$`)

// ParseTick parses a tick schedule string.
func ParseTick(raw string) (TickSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TickSpec{}, fmt.Errorf("tick schedule required")
	}

	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		rest = strings.TrimSpace(rest)
		if _, err := tickParser.Parse(rest); err != nil {
			return TickSpec{}, fmt.Errorf("invalid cron tick %q: %w", rest, err)
		}
		return TickSpec{Cron: rest}, nil
	}
	if rest, ok := strings.CutPrefix(s, "every:"); ok {
		d, err := parseTickInterval(strings.TrimSpace(rest))
		if err != nil {
			return TickSpec{}, err
		}
		return TickSpec{Every: d}, nil
	}

	// Whitespace or a leading '@' can only be cron.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		if _, err := tickParser.Parse(s); err != nil {
			return TickSpec{}, fmt.Errorf("invalid cron tick %q: %w", s, err)
		}
		return TickSpec{Cron: s}, nil
	}

	d, err := parseTickInterval(s)
	if err != nil {
		return TickSpec{}, fmt.Errorf(
			"invalid tick %q (use cron like '*/5 * * * *', HH:MM like '00:05', or duration like '1m')", raw)
	}
	return TickSpec{Every: d}, nil
}

func parseTickInterval(s string) (time.Duration, error) {
	if reTickHHMM.MatchString(s) {
		h, m, _ := strings.Cut(s, ":")
		hh := 0
		for i := 0; i < len(h); i++ {
			hh = hh*10 + int(h[i]-'0')
		}
		mm := int(m[0]-'0')*10 + int(m[1]-'0')
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", s)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, fmt.Errorf("tick interval must be > 0")
		}
		return d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("tick interval must be > 0")
	}
	return d, nil
}

// Schedule materializes the spec as a cron.Schedule for next-tick math.
func (ts TickSpec) Schedule() (cron.Schedule, error) {
	if ts.Cron != "" {
		return tickParser.Parse(ts.Cron)
	}
	if ts.Every <= 0 {
		return nil, fmt.Errorf("empty tick spec")
	}
	return cron.Every(ts.Every), nil
}

// Window is the half-open fire window width paired with this spec: interval
// ticks use their own period, cron ticks a fixed minute.
func (ts TickSpec) Window() time.Duration {
	if ts.Every > 0 {
		return ts.Every
	}
	return time.Minute
}
