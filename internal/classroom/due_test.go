package classroom

import (
	"testing"
	"time"
)

func ip(v int) *int { return &v }

func TestDueInstant(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)

	tests := []struct {
		name string
		w    WorkItem
		want time.Time
		ok   bool
	}{
		{name: "no due date", w: WorkItem{}, ok: false},
		{
			name: "full",
			w:    WorkItem{DueDate: &Date{ip(2024), ip(5), ip(2)}, DueTime: &TimeOfDay{ip(23), ip(59), ip(0)}},
			want: time.Date(2024, 5, 2, 23, 59, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "missing time is midnight",
			w:    WorkItem{DueDate: &Date{ip(2024), ip(5), ip(3)}},
			want: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "partial components",
			w:    WorkItem{DueDate: &Date{Day: ip(9)}, DueTime: &TimeOfDay{Hours: ip(8)}},
			want: time.Date(2024, 5, 9, 8, 20, 30, 0, time.UTC),
			ok:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.w.DueInstant(now)
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Fatalf("DueInstant = %v,%v want %v,%v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDueInstantWithoutTimeIsStable(t *testing.T) {
	t.Parallel()
	w := WorkItem{DueDate: &Date{ip(2024), ip(5), ip(2)}}
	a, _ := w.DueInstant(time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC))
	b, _ := w.DueInstant(time.Date(2024, 5, 2, 23, 59, 0, 0, time.UTC))
	if !a.Equal(b) {
		t.Fatalf("deadline moved with the clock: %v vs %v", a, b)
	}
}
