package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"classbot/internal/eventbus"
	"classbot/internal/routing"
	rtsup "classbot/internal/runtime/supervisor"
	"classbot/internal/storage"
	"classbot/internal/transport"
	"classbot/pkg/logx"
)

// Sender posts a message to a group's channel.
type Sender interface {
	Send(ctx context.Context, g transport.Group, m transport.Message) error
}

// Resolver decides delivery and mentions for a (course, group) pair.
type Resolver interface {
	Resolve(course string, g transport.Group) routing.Resolution
}

type dedupWrite struct {
	key   string
	until time.Time
}

// Service delivers notices to destination groups.
//
// It is safe for concurrent use.
type Service struct {
	mu       sync.Mutex
	log      logx.Logger
	sender   Sender
	resolver Resolver
	bus      eventbus.Bus
	store    storage.Store

	cfg     Config
	limiter *rate.Limiter

	dmu   sync.Mutex
	dedup map[string]time.Time

	persistCh chan dedupWrite
	sup       *rtsup.Supervisor
}

func New(cfg Config, sender Sender, resolver Resolver, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:      log.With(logx.String("comp", "notifier")),
		sender:   sender,
		resolver: resolver,
		bus:      bus,
		store:    store,
		dedup:    map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 5000
	}
	s.cfg = cfg
	// Burst equals the per-second rate so a fan-out to a few groups is not serialized.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start runs the dedup persistence loop when persist_dedup is on. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.PersistDedup || s.store == nil {
		return
	}
	s.persistCh = make(chan dedupWrite, 1024)
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	ch, st := s.persistCh, s.store
	s.sup.GoRestart("dedup.persist", func(c context.Context) error {
		s.persistLoop(c, ch, st)
		return c.Err()
	}, rtsup.WithPublishFirstError(true))
}

// Stop ends the persistence loop, flushing queued writes best-effort.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.persistCh = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil {
		s.log.Warn("notifier stop timed out", logx.Err(err))
	}
}

// Supervisor exposes the persistence loop supervisor (nil when not running).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Fanout delivers n to every group concurrently and reports per-group results
// in the order of groups.
func (s *Service) Fanout(ctx context.Context, groups []transport.Group, n Notice) Report {
	rep := Report{PassID: uuid.NewString(), Results: make([]Result, len(groups))}
	start := time.Now()

	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep.Results[i] = s.deliver(ctx, g, n)
		}()
	}
	wg.Wait()

	for _, res := range rep.Results {
		s.record(ctx, rep.PassID, n, res)
	}
	fields := []logx.Field{
		logx.String("pass", rep.PassID),
		logx.String("course", n.Course.Name),
		logx.String("kind", string(n.Kind)),
		logx.Int("groups", len(groups)),
		logx.Int("sent", rep.Count(StatusSent)),
		logx.Int("failed", rep.Count(StatusFailed)),
		logx.Duration("dur", time.Since(start)),
	}
	if rep.Count(StatusFailed) > 0 {
		s.log.Warn("fan-out finished with failures", fields...)
	} else {
		s.log.Debug("fan-out finished", fields...)
	}
	return rep
}

func (s *Service) deliver(ctx context.Context, g transport.Group, n Notice) Result {
	res := Result{Group: g}
	if s.resolver == nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("notifier: no resolver")
		return res
	}
	r := s.resolver.Resolve(n.Course.Name, g)
	if !r.Deliver {
		res.Status = StatusSkipped
		s.publish(eventbus.TypeDeliverySkipped, g, n, "", 0, nil)
		return res
	}
	if r.Channel == nil {
		res.Status, res.Err = StatusFailed, ErrNoChannel
		s.log.Error("no notification channel for group",
			logx.String("group", g.Name), logx.String("platform", g.Platform), logx.String("course", n.Course.Name))
		s.publish(eventbus.TypeDeliveryFailed, g, n, "", 0, ErrNoChannel)
		return res
	}
	g.Channel = r.Channel

	key := dedupKey(g, n)
	var until time.Time
	if n.DedupWindow > 0 {
		var ok bool
		if until, ok = s.dedupReserve(ctx, key, n.DedupWindow); !ok {
			res.Status = StatusDeduped
			s.publish(eventbus.TypeDeliveryDeduped, g, n, key, 0, nil)
			return res
		}
	}

	res.Attempts, res.Err = s.sendWithRetry(ctx, g, n.message(r.Tokens()))
	if n.DedupWindow > 0 {
		if res.Err != nil {
			s.dedupRelease(key, until)
		} else {
			s.dedupCommit(key, until)
		}
	}
	if res.Err != nil {
		res.Status = StatusFailed
		s.log.Error("delivery failed",
			logx.String("group", g.Name), logx.String("platform", g.Platform),
			logx.String("course", n.Course.Name), logx.Int("attempts", res.Attempts), logx.Err(res.Err))
		s.publish(eventbus.TypeDeliveryFailed, g, n, key, res.Attempts, res.Err)
		return res
	}
	res.Status = StatusSent
	s.publish(eventbus.TypeDeliverySent, g, n, key, res.Attempts, nil)
	return res
}

func (s *Service) sendWithRetry(ctx context.Context, g transport.Group, m transport.Message) (int, error) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()
	if sender == nil {
		return 0, fmt.Errorf("notifier: no sender")
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return attempt - 1, err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sender.Send(callCtx, g, m)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		s.log.Debug("send failed", logx.String("group", g.Name), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))
		if attempt == maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return attempt, ctx.Err()
		}
	}
	return maxAttempts, lastErr
}

// retryDelay is base*2^(attempt-1) capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}

func dedupKey(g transport.Group, n Notice) string {
	h := fnv.New64a()
	for _, part := range []string{g.Key(), string(n.Kind), n.Course.ID, n.EntityID, n.Document.Title, n.Document.Description} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{'|'})
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// dedupReserve claims key for window unless an unexpired claim exists in
// memory or in the store. The claim is kept by dedupCommit after a successful
// send and dropped by dedupRelease after a failed one.
func (s *Service) dedupReserve(ctx context.Context, key string, window time.Duration) (time.Time, bool) {
	s.mu.Lock()
	maxEntries, persist, st := s.cfg.DedupMaxEntries, s.cfg.PersistDedup, s.store
	s.mu.Unlock()
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return time.Time{}, false
	}
	s.dmu.Unlock()

	if persist && st != nil {
		qctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		until, ok, err := st.GetDedup(qctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return time.Time{}, false
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > maxEntries {
		var oldest string
		var oldestT time.Time
		for k, u := range s.dedup {
			if oldest == "" || u.Before(oldestT) {
				oldest, oldestT = k, u
			}
		}
		delete(s.dedup, oldest)
	}
	s.dmu.Unlock()
	return until, true
}

func (s *Service) dedupCommit(key string, until time.Time) {
	s.mu.Lock()
	pch := s.persistCh
	s.mu.Unlock()
	if pch == nil {
		return
	}
	select {
	case pch <- dedupWrite{key: key, until: until}:
	default:
	}
}

// dedupRelease drops a failed delivery's claim so the next pass retries it.
func (s *Service) dedupRelease(key string, until time.Time) {
	s.dmu.Lock()
	if u, ok := s.dedup[key]; ok && u.Equal(until) {
		delete(s.dedup, key)
	}
	s.dmu.Unlock()
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite, st storage.Store) {
	put := func(w dedupWrite) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := st.PutDedup(wctx, w.key, w.until); err != nil {
			s.log.Debug("dedup persist failed", logx.Err(err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case w := <-ch:
					put(w)
				default:
					return
				}
			}
		case w := <-ch:
			put(w)
		}
	}
}

func (s *Service) record(ctx context.Context, passID string, n Notice, res Result) {
	if s.store == nil || (res.Status != StatusSent && res.Status != StatusFailed) {
		return
	}
	rec := storage.DeliveryRecord{
		At:       time.Now().UTC(),
		PassID:   passID,
		Platform: res.Group.Platform,
		Group:    res.Group.Name,
		Course:   n.Course.Name,
		Kind:     string(n.Kind),
		EntityID: n.EntityID,
		OK:       res.Status == StatusSent,
		Attempts: res.Attempts,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.store.AppendDelivery(wctx, rec); err != nil {
		s.log.Debug("delivery log append failed", logx.Err(err))
	}
}

func (s *Service) publish(typ string, g transport.Group, n Notice, key string, attempts int, err error) {
	if s.bus == nil {
		return
	}
	d := eventbus.Delivery{
		Platform: g.Platform,
		Group:    g.Name,
		Course:   n.Course.Name,
		Kind:     string(n.Kind),
		Key:      key,
		Attempts: attempts,
	}
	if err != nil {
		d.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: d})
}
