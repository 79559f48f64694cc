package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cadence yields the delay until a loop's next run.
type Cadence struct {
	spec  Spec
	sched cron.Schedule
}

// Every is a fixed-interval cadence.
func Every(d time.Duration) Cadence {
	return Cadence{spec: Spec{Kind: KindInterval, Every: d, Source: "duration"}}
}

// NewCadence parses raw; an empty raw yields Every(fallback). On a parse
// error the fallback cadence is returned together with the error.
func NewCadence(raw string, fallback time.Duration) (Cadence, error) {
	def := Every(fallback)
	if raw == "" {
		return def, nil
	}
	spec, err := ParseSchedule(raw)
	if err != nil {
		return def, err
	}
	if spec.Kind == KindInterval {
		return Cadence{spec: spec}, nil
	}
	sched, err := parser.Parse(spec.Cron)
	if err != nil {
		return def, fmt.Errorf("invalid cron %q: %w", spec.Cron, err)
	}
	return Cadence{spec: spec, sched: sched}, nil
}

func (c Cadence) Spec() Spec { return c.spec }

// Next returns how long to wait after a cycle that finished at now.
func (c Cadence) Next(now time.Time) time.Duration {
	if c.sched == nil {
		return c.spec.Every
	}
	next := c.sched.Next(now.UTC())
	if next.IsZero() {
		return 0
	}
	return next.Sub(now)
}

func (c Cadence) String() string {
	if c.spec.Kind == KindCron {
		return "cron(" + c.spec.Cron + ")"
	}
	return "every(" + c.spec.Every.String() + ")"
}

// Sleep waits for d or until ctx is done; it returns ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
