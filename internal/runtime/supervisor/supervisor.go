// Package supervisor runs the named goroutines of a component (poll loop,
// reminder loop, auth handshake, config watcher, ops server) with panic
// recovery, optional restart with backoff, and per-name counters for /healthz.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "classbot/pkg/logx"
)

// healthyRun is how long a restarted task must survive to reset its backoff.
const healthyRun = 30 * time.Second

// Supervisor owns a context shared by its goroutines. Stop cancels the
// context and waits, bounded by the caller's context.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	wg       sync.WaitGroup
	waitOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	firstErr error
	tasks    map[string]*GoroutineStats
}

type SupervisorOption func(*Supervisor)

// SupervisorCounters sums the per-name stats.
type SupervisorCounters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

// GoroutineStats aggregates runs of goroutines sharing a name.
type GoroutineStats struct {
	Name        string    `json:"name"`
	Active      int64     `json:"active"`
	Started     uint64    `json:"started"`
	Panics      uint64    `json:"panics"`
	Restarts    uint64    `json:"restarts"`
	LastStartAt time.Time `json:"last_start_at"`
	LastStopAt  time.Time `json:"last_stop_at,omitempty"`
	LastErr     string    `json:"last_err,omitempty"`
	LastErrAt   time.Time `json:"last_err_at,omitempty"`
}

// SupervisorSnapshot is served by /healthz; it is not a synchronization point.
type SupervisorSnapshot struct {
	Counters   SupervisorCounters `json:"counters"`
	FirstError string             `json:"first_error,omitempty"`
	Goroutines []GoroutineStats   `json:"goroutines"`
}

func WithLogger(log logx.Logger) SupervisorOption {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context on the first goroutine error.
func WithCancelOnError(enabled bool) SupervisorOption {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func NewSupervisor(parent context.Context, opts ...SupervisorOption) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		tasks:  map[string]*GoroutineStats{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err is the first error recorded by any goroutine.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

func (s *Supervisor) Counters() SupervisorCounters {
	if s == nil {
		return SupervisorCounters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var c SupervisorCounters
	for _, st := range s.tasks {
		c.Active += st.Active
		c.Started += st.Started
	}
	return c
}

func (s *Supervisor) Snapshot() SupervisorSnapshot {
	if s == nil {
		return SupervisorSnapshot{}
	}
	snap := SupervisorSnapshot{Counters: s.Counters()}
	s.mu.Lock()
	if s.firstErr != nil {
		snap.FirstError = s.firstErr.Error()
	}
	snap.Goroutines = make([]GoroutineStats, 0, len(s.tasks))
	for _, st := range s.tasks {
		snap.Goroutines = append(snap.Goroutines, *st)
	}
	s.mu.Unlock()

	sort.Slice(snap.Goroutines, func(i, j int) bool {
		a, b := snap.Goroutines[i], snap.Goroutines[j]
		if a.Active != b.Active {
			return a.Active > b.Active
		}
		return a.Name < b.Name
	})
	return snap
}

func (s *Supervisor) stats(name string) *GoroutineStats {
	st := s.tasks[name]
	if st == nil {
		st = &GoroutineStats{Name: name}
		s.tasks[name] = st
	}
	return st
}

func (s *Supervisor) began(name string, restart bool) time.Time {
	now := time.Now()
	s.mu.Lock()
	st := s.stats(name)
	st.Started++
	st.Active++
	st.LastStartAt = now
	if restart {
		st.Restarts++
	}
	s.mu.Unlock()
	return now
}

func (s *Supervisor) ended(name string, err error, panicked bool) {
	now := time.Now()
	s.mu.Lock()
	st := s.stats(name)
	st.Active = max(0, st.Active-1)
	st.LastStopAt = now
	if panicked {
		st.Panics++
	}
	if err != nil {
		st.LastErr = err.Error()
		st.LastErrAt = now
	}
	s.mu.Unlock()
}

// guard runs fn, turning a panic into an error. Cancellation is reported as nil.
func (s *Supervisor) guard(name string, fn func(ctx context.Context) error) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			panicked, err = true, fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	err = fn(s.ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return false, nil
	}
	return false, fmt.Errorf("%s: %w", name, err)
}

func (s *Supervisor) spawn(body func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		body()
	}()
}

// Go runs fn once. A returned error (other than cancellation) or a panic is
// recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.spawn(func() {
		s.began(name, false)
		panicked, err := s.guard(name, fn)
		s.ended(name, err, panicked)
		if err != nil {
			s.fail(err)
		}
	})
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// RestartOption configures GoRestart.
type RestartOption func(*restartPolicy)

type restartPolicy struct {
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxRestarts int // <= 0: unlimited
	publishErr  bool
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(lo, hi time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if lo > 0 {
			p.minBackoff = lo
		}
		if hi > 0 {
			p.maxBackoff = hi
		}
	}
}

// WithMaxRestarts gives up after n restarts; the first run is not counted.
func WithMaxRestarts(n int) RestartOption { return func(p *restartPolicy) { p.maxRestarts = n } }

// WithPublishFirstError records restart-worthy errors as the supervisor error.
// It never cancels the supervisor.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(p *restartPolicy) { p.publishErr = enabled }
}

// GoRestart runs fn and restarts it after an error or panic with jittered
// exponential backoff. A nil or context.Canceled return is a clean stop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, o := range opts {
		o(&p)
	}
	p.maxBackoff = max(p.maxBackoff, p.minBackoff)

	s.spawn(func() {
		backoff := p.minBackoff
		for restarts := 0; s.ctx.Err() == nil; restarts++ {
			startedAt := s.began(name, restarts > 0)
			panicked, err := s.guard(name, fn)
			s.ended(name, err, panicked)
			if err == nil || s.ctx.Err() != nil {
				return
			}
			if p.publishErr {
				s.setErr(err)
			}
			if p.maxRestarts > 0 && restarts >= p.maxRestarts {
				s.log.Error("goroutine gave up", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				return
			}
			if time.Since(startedAt) >= healthyRun {
				backoff = p.minBackoff
			}
			wait := backoff + rand.N(backoff/5+1)
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			if !sleepCtx(s.ctx, wait) {
				return
			}
			backoff = min(2*backoff, p.maxBackoff)
		}
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Stop cancels and waits.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine has returned or ctx ends, then reports
// the first recorded error.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.setErr(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
}
