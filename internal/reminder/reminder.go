// Package reminder runs the reminder loop: it scans the current snapshot for
// work items whose deadline is near and notifies every group about them.
package reminder

import (
	"context"
	"sync/atomic"
	"time"

	"classbot/internal/classroom"
	"classbot/internal/eventbus"
	"classbot/internal/notifier"
	"classbot/internal/schedule"
	"classbot/internal/snapshot"
	"classbot/internal/transport"
	"classbot/pkg/logx"
)

type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateScanning
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateScanning:
		return "scanning"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// DueInstant is the work item's deadline; see classroom.WorkItem.DueInstant.
func DueInstant(w classroom.WorkItem, now time.Time) (time.Time, bool) {
	return w.DueInstant(now)
}

// DueSoon reports whether now lies in [due-lookahead, due], bounds included.
// Items without a due date or due time are never due soon.
func DueSoon(w classroom.WorkItem, now time.Time, lookahead time.Duration) bool {
	if w.DueTime == nil {
		return false
	}
	due, ok := DueInstant(w, now)
	if !ok {
		return false
	}
	return !now.Before(due.Add(-lookahead)) && !now.After(due)
}

type GroupLister interface {
	Groups(ctx context.Context) ([]transport.Group, error)
}

type Notifier interface {
	Fanout(ctx context.Context, groups []transport.Group, n notifier.Notice) notifier.Report
}

type Settings struct {
	Cadence schedule.Cadence
	Within  time.Duration
	// DedupWindow of zero re-announces on every scan.
	DedupWindow time.Duration
}

type Deps struct {
	Ready     <-chan struct{}
	Store     *snapshot.Store
	Groups    GroupLister
	Formatter *notifier.Formatter
	Notifier  Notifier
	Bus       eventbus.Bus
	Log       logx.Logger
	Now       func() time.Time
}

type Loop struct {
	d        Deps
	log      logx.Logger
	settings atomic.Pointer[Settings]
	state    atomic.Int32
}

func New(d Deps, s Settings) *Loop {
	if d.Now == nil {
		d.Now = time.Now
	}
	l := &Loop{d: d, log: d.Log.With(logx.String("comp", "reminder"))}
	l.Apply(s)
	return l
}

func (l *Loop) Apply(s Settings) { l.settings.Store(&s) }

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	l.publish(eventbus.TypeLoopState, eventbus.LoopState{Loop: "reminder", State: s.String()})
}

// Run waits for readiness and scans until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(StateStopped)
	l.setState(StateAuthenticating)
	select {
	case <-ctx.Done():
		return nil
	case <-l.d.Ready:
	}
	for {
		l.setState(StateScanning)
		l.Scan(ctx)

		l.setState(StateSleeping)
		if err := schedule.Sleep(ctx, l.settings.Load().Cadence.Next(l.d.Now())); err != nil {
			return nil
		}
	}
}

type dueItem struct {
	course classroom.Course
	work   classroom.WorkItem
}

// Scan notifies about every due-soon item of the current snapshot and
// returns how many were found.
func (l *Loop) Scan(ctx context.Context) int {
	start := l.d.Now()
	set := l.settings.Load()
	snap := l.d.Store.Load()

	var due []dueItem
	for _, name := range snap.Names() {
		e, _ := snap.Get(name)
		for _, w := range e.Work {
			if DueSoon(w, start, set.Within) {
				due = append(due, dueItem{course: e.Course, work: w})
			}
		}
	}
	defer func() {
		l.publish(eventbus.TypeReminderScan, eventbus.ReminderScan{DueSoon: len(due), Took: l.d.Now().Sub(start)})
	}()
	if len(due) == 0 {
		return 0
	}

	groups, err := l.d.Groups.Groups(ctx)
	if err != nil {
		l.log.Error("listing destination groups failed", logx.Err(err))
		return len(due)
	}
	for _, it := range due {
		if ctx.Err() != nil {
			break
		}
		n := l.d.Formatter.Reminder(it.course, it.work, start)
		n.DedupWindow = set.DedupWindow
		l.log.Info("work due soon", logx.String("course", it.course.Name), logx.String("item", it.work.Title))
		l.d.Notifier.Fanout(ctx, groups, n)
	}
	return len(due)
}

func (l *Loop) publish(typ string, data any) {
	if l.d.Bus != nil {
		l.d.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
	}
}
