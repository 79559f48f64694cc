// Package schedule turns schedule strings into loop cadences.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

func (k Kind) String() string {
	if k == KindCron {
		return "cron"
	}
	return "interval"
}

// Spec is a parsed schedule string.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "0 */2 * * * *" (optional seconds), "@hourly", "@every 90s"
//   - Go duration: "90s", "2h30m"
//   - HH:MM interval: "00:05" (five minutes), "02:30"
//
// "cron:" forces cron; "interval:" and "every:" force an interval.
type Spec struct {
	Kind   Kind
	Cron   string
	Every  time.Duration
	Source string // cron | duration | hhmm
}

var hhmmRe = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron expression required after %q", "cron:")
		}
		return Spec{Kind: KindCron, Cron: expr, Source: "cron"}, nil
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(s[len("every:"):])
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return Spec{Kind: KindCron, Cron: s, Source: "cron"}, nil
	}
	spec, err := intervalSpec(s)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid schedule %q (cron like '*/5 * * * *', HH:MM like '00:05', or duration like '90s')", raw)
	}
	return spec, nil
}

func intervalSpec(v string) (Spec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Spec{}, fmt.Errorf("interval required")
	}
	if hhmmRe.MatchString(v) {
		h, m, err := parseHHMM(v)
		if err != nil {
			return Spec{}, err
		}
		d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be > 0")
		}
		return Spec{Kind: KindInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid interval %q", v)
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0")
	}
	return Spec{Kind: KindInterval, Every: d, Source: "duration"}, nil
}

// parseHHMM splits "H:MM"; hours go up to 999 since this is an interval.
func parseHHMM(v string) (int, int, error) {
	m := hhmmRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return 0, 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return h, mm, nil
}
