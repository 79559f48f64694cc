// Package poller runs the poll loop: fetch a fresh snapshot, diff it
// against the current one, notify every group of the changes, then publish
// the fresh snapshot.
package poller

import (
	"context"
	"errors"
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
	StatePolling
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StatePolling:
		return "polling"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

type Fetcher interface {
	Fetch(ctx context.Context, prev *snapshot.Snapshot) (*snapshot.Snapshot, snapshot.FetchStats, error)
}

type GroupLister interface {
	Groups(ctx context.Context) ([]transport.Group, error)
}

type Notifier interface {
	Fanout(ctx context.Context, groups []transport.Group, n notifier.Notice) notifier.Report
}

// Settings are the hot-reloadable knobs.
type Settings struct {
	Cadence schedule.Cadence
	// DedupWindow is attached to every change notice.
	DedupWindow time.Duration
}

type Deps struct {
	Ready     <-chan struct{}
	Fetcher   Fetcher
	Store     *snapshot.Store
	Roster    *snapshot.Roster
	Teachers  snapshot.TeacherSource
	Groups    GroupLister
	Formatter *notifier.Formatter
	Notifier  Notifier
	Bus       eventbus.Bus
	Log       logx.Logger
	// Concurrency bounds roster requests.
	Concurrency int
	Now         func() time.Time
}

type Poller struct {
	d        Deps
	log      logx.Logger
	settings atomic.Pointer[Settings]
	state    atomic.Int32
}

func New(d Deps, s Settings) *Poller {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Roster == nil {
		d.Roster = snapshot.NewRoster()
	}
	p := &Poller{d: d, log: d.Log.With(logx.String("comp", "poller"))}
	p.Apply(s)
	return p
}

// Apply takes effect from the next sleep on.
func (p *Poller) Apply(s Settings) { p.settings.Store(&s) }

func (p *Poller) State() State { return State(p.state.Load()) }

func (p *Poller) setState(s State) {
	if State(p.state.Swap(int32(s))) == s {
		return
	}
	p.publish(eventbus.TypeLoopState, eventbus.LoopState{Loop: "poll", State: s.String()})
}

// Run waits for readiness, then polls until ctx is canceled. Cancellation
// is a clean stop and returns nil.
func (p *Poller) Run(ctx context.Context) error {
	defer p.setState(StateStopped)
	p.setState(StateAuthenticating)
	select {
	case <-ctx.Done():
		return nil
	case <-p.d.Ready:
	}
	for {
		p.setState(StatePolling)
		p.Cycle(ctx)

		p.setState(StateSleeping)
		wait := p.settings.Load().Cadence.Next(p.d.Now())
		p.log.Debug("sleeping", logx.Duration("for", wait))
		if err := schedule.Sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// Cycle runs one fetch, diff and notify pass. The fresh snapshot is only
// published when the fetch succeeded and, if there were changes, the
// destination groups could be listed.
func (p *Poller) Cycle(ctx context.Context) eventbus.CycleDone {
	start := p.d.Now()
	done := func(r eventbus.CycleDone) eventbus.CycleDone {
		r.Took = p.d.Now().Sub(start)
		p.publish(eventbus.TypeCycleDone, r)
		return r
	}

	prev := p.d.Store.Load()
	fresh, stats, err := p.d.Fetcher.Fetch(ctx, prev)
	if err != nil {
		if ctx.Err() == nil {
			if errors.Is(err, classroom.ErrNoCourses) {
				p.log.Error("no courses found")
			} else {
				p.log.Error("fetch failed", logx.Err(err))
			}
		}
		return done(eventbus.CycleDone{Result: "fetch_error"})
	}

	if !p.d.Roster.Loaded() && p.d.Teachers != nil {
		if err := p.d.Roster.Load(ctx, p.d.Teachers, fresh.Courses(), p.d.Concurrency, p.log); err != nil {
			p.log.Warn("roster load interrupted", logx.Err(err))
		}
	}

	records := snapshot.Diff(prev, fresh)
	res := eventbus.CycleDone{Result: "ok", Courses: stats.Courses, Records: len(records)}
	if len(records) > 0 {
		groups, err := p.d.Groups.Groups(ctx)
		if err != nil {
			p.log.Error("listing destination groups failed, keeping previous snapshot", logx.Err(err))
			res.Result = "groups_error"
			return done(res)
		}
		p.notify(ctx, groups, records)
	}

	p.d.Store.Swap(fresh)
	p.log.Info("poll cycle complete",
		logx.Int("courses", stats.Courses),
		logx.Int("failed", stats.Failed),
		logx.Int("changes", snapshot.Count(records)),
		logx.Duration("took", p.d.Now().Sub(start)))
	return done(res)
}

func (p *Poller) notify(ctx context.Context, groups []transport.Group, records []snapshot.Record) {
	window := p.settings.Load().DedupWindow
	now := p.d.Now()
	for _, rec := range records {
		for _, wc := range rec.Work {
			kind := notifier.KindNewWork
			if wc.Kind == snapshot.ChangeUpdated {
				kind = notifier.KindUpdatedWork
			}
			n := p.d.Formatter.Work(kind, rec.Course, wc.Item, now)
			p.send(ctx, groups, n, window, wc.Item.Title)
		}
		for _, ac := range rec.Announcements {
			kind := notifier.KindNewAnnouncement
			if ac.Kind == snapshot.ChangeUpdated {
				kind = notifier.KindUpdatedAnnouncement
			}
			n := p.d.Formatter.Announcement(kind, rec.Course, ac.Item)
			p.send(ctx, groups, n, window, ac.Item.Text)
		}
	}
}

func (p *Poller) send(ctx context.Context, groups []transport.Group, n notifier.Notice, window time.Duration, summary string) {
	if ctx.Err() != nil {
		return
	}
	n.DedupWindow = window
	p.log.Info("change detected",
		logx.String("course", n.Course.Name),
		logx.String("kind", string(n.Kind)),
		logx.String("item", preview(summary, 25)))
	p.publish(eventbus.TypeChangeDetected, eventbus.ChangeDetected{Course: n.Course.Name, Kind: string(n.Kind), ID: n.EntityID})
	p.d.Notifier.Fanout(ctx, groups, n)
}

func (p *Poller) publish(typ string, data any) {
	if p.d.Bus != nil {
		p.d.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
	}
}

// preview flattens newlines and truncates to n runes.
func preview(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' {
			r[i] = ' '
		}
	}
	if len(r) > n {
		return string(r[:n]) + "…"
	}
	return string(r)
}
