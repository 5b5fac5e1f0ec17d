package notify

import (
	"testing"
	"time"
)

func TestParseTickVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		cron  string
		every time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", cron: "*/5 * * * *"},
		{name: "descriptor", raw: "@hourly", cron: "@hourly"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", cron: "0 0 * * *"},
		{name: "duration", raw: "10m", every: 10 * time.Minute},
		{name: "prefixed interval", raw: "every:45s", every: 45 * time.Second},
		{name: "hhmm", raw: "01:30", every: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTick(tt.raw)
			if err != nil {
				t.Fatalf("ParseTick(%q) error: %v", tt.raw, err)
			}
			if got.Cron != tt.cron {
				t.Fatalf("Cron = %q, want %q", got.Cron, tt.cron)
			}
			if got.Every != tt.every {
				t.Fatalf("Every = %v, want %v", got.Every, tt.every)
			}
			if _, err := got.Schedule(); err != nil {
				t.Fatalf("Schedule: %v", err)
			}
		})
	}
}

func TestParseTickInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0s", "00:00", "cron:bogus here"} {
		if _, err := ParseTick(raw); err == nil {
			t.Fatalf("ParseTick(%q) succeeded, want error", raw)
		}
	}
}

func TestTickSpecWindow(t *testing.T) {
	t.Parallel()
	if w := (TickSpec{Every: 30 * time.Second}).Window(); w != 30*time.Second {
		t.Fatalf("interval window = %v", w)
	}
	if w := (TickSpec{Cron: "*/5 * * * *"}).Window(); w != time.Minute {
		t.Fatalf("cron window = %v", w)
	}
}
