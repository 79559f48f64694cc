package classroom

import "time"

// DueInstant combines DueDate and DueTime in UTC. ok is false when the item
// has no due date. A missing DueTime means midnight of the due date; unset
// components of a partial date or time take now's value.
func (w WorkItem) DueInstant(now time.Time) (time.Time, bool) {
	if w.DueDate == nil {
		return time.Time{}, false
	}
	now = now.UTC()
	d := w.DueDate
	t := w.DueTime
	if t == nil {
		zero := 0
		t = &TimeOfDay{Hours: &zero, Minutes: &zero, Seconds: &zero}
	}
	return time.Date(
		or(d.Year, now.Year()),
		time.Month(or(d.Month, int(now.Month()))),
		or(d.Day, now.Day()),
		or(t.Hours, now.Hour()),
		or(t.Minutes, now.Minute()),
		or(t.Seconds, now.Second()),
		0, time.UTC,
	), true
}

func or(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
