package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classbot/internal/classroom"
	"classbot/internal/config"
	"classbot/internal/eventbus"
	"classbot/internal/routing"
	"classbot/internal/storage"
	"classbot/internal/transport"
	"classbot/pkg/logx"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  map[string][]transport.Message
	fail  map[string]error
	calls map[string]int
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: map[string][]transport.Message{}, fail: map[string]error{}, calls: map[string]int{}}
}

func (r *recordingSender) Send(_ context.Context, g transport.Group, m transport.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[g.Name]++
	if err := r.fail[g.Name]; err != nil {
		return err
	}
	r.sent[g.Name] = append(r.sent[g.Name], m)
	return nil
}

type memStore struct {
	mu         sync.Mutex
	deliveries []storage.DeliveryRecord
	dedup      map[string]time.Time
}

func (m *memStore) AppendDelivery(_ context.Context, r storage.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, r)
	return nil
}

func (m *memStore) PutDedup(_ context.Context, key string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dedup == nil {
		m.dedup = map[string]time.Time{}
	}
	m.dedup[key] = until
	return nil
}

func (m *memStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.dedup[key]
	return u, ok, nil
}

func (m *memStore) RecentDeliveries(_ context.Context, limit int) ([]storage.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.DeliveryRecord, 0, limit)
	for i := len(m.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.deliveries[i])
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func group(name string, withChannel bool) transport.Group {
	g := transport.Group{
		Platform: "discord",
		ID:       name,
		Name:     name,
		Everyone: transport.Role{ID: name, Name: "@everyone", Mention: "@everyone"},
	}
	if withChannel {
		g.Channel = &transport.Channel{ID: "news-" + name}
	}
	return g
}

func notice() Notice {
	return Notice{
		Kind:     KindNewWork,
		Course:   classroom.Course{ID: "c1", Name: "Math"},
		EntityID: "w1",
		Header:   "New coursework in Math",
		Document: transport.Document{Title: "HW1"},
	}
}

func newService(t *testing.T, cfg *config.Config, sender Sender, bus eventbus.Bus, st storage.Store) *Service {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	return New(Config{RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond, RatePerSec: 1000},
		sender, routing.NewResolver(config.NewLookup(cfg, nil)), logx.Nop(), bus, st)
}

func TestFanoutIsolatesGroups(t *testing.T) {
	t.Parallel()
	sender := newRecordingSender()
	sender.fail["broken"] = errors.New("http 500")
	st := &memStore{}
	s := newService(t, nil, sender, nil, st)

	groups := []transport.Group{group("ok", true), group("broken", true), group("nochan", false)}
	rep := s.Fanout(context.Background(), groups, notice())

	if rep.PassID == "" {
		t.Fatal("pass id must be set")
	}
	want := []Status{StatusSent, StatusFailed, StatusFailed}
	for i, res := range rep.Results {
		if res.Status != want[i] {
			t.Fatalf("group %s: status %v, want %v", res.Group.Name, res.Status, want[i])
		}
	}
	if !errors.Is(rep.Results[2].Err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", rep.Results[2].Err)
	}
	if sender.calls["broken"] != 3 || rep.Results[1].Attempts != 3 {
		t.Fatalf("expected 3 attempts, got calls=%d attempts=%d", sender.calls["broken"], rep.Results[1].Attempts)
	}
	if sender.calls["nochan"] != 0 {
		t.Fatal("group without channel must not be sent to")
	}
	msgs := sender.sent["ok"]
	if len(msgs) != 1 || msgs[0].Header != "New coursework in Math @everyone" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if len(st.deliveries) != 3 || !st.deliveries[0].OK || st.deliveries[1].OK {
		t.Fatalf("unexpected delivery log %+v", st.deliveries)
	}
	if st.deliveries[0].PassID != rep.PassID {
		t.Fatal("delivery records must carry the pass id")
	}
}

func TestFanoutSkipsBlacklisted(t *testing.T) {
	t.Parallel()
	sender := newRecordingSender()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	cfg := &config.Config{Routing: config.RoutingConfig{CourseBlacklist: []string{"Math"}}}
	s := newService(t, cfg, sender, bus, nil)

	rep := s.Fanout(context.Background(), []transport.Group{group("ok", true)}, notice())
	if rep.Results[0].Status != StatusSkipped || sender.calls["ok"] != 0 {
		t.Fatalf("blacklisted course must be skipped: %+v", rep.Results[0])
	}
	select {
	case e := <-events:
		if e.Type != eventbus.TypeDeliverySkipped {
			t.Fatalf("unexpected event %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no skip event")
	}
}

func TestFanoutDedupWindow(t *testing.T) {
	t.Parallel()
	sender := newRecordingSender()
	s := newService(t, nil, sender, nil, nil)
	n := notice()
	n.DedupWindow = time.Hour
	groups := []transport.Group{group("ok", true)}

	if rep := s.Fanout(context.Background(), groups, n); rep.Results[0].Status != StatusSent {
		t.Fatalf("first send: %+v", rep.Results[0])
	}
	if rep := s.Fanout(context.Background(), groups, n); rep.Results[0].Status != StatusDeduped {
		t.Fatalf("second send must be deduped: %+v", rep.Results[0])
	}
	n.DedupWindow = 0
	if rep := s.Fanout(context.Background(), groups, n); rep.Results[0].Status != StatusSent {
		t.Fatalf("no window means no dedup: %+v", rep.Results[0])
	}
}

func TestFailedDeliveryIsNotDeduped(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	sender := newRecordingSender()
	sender.fail["g"] = errors.New("http 502")
	s := New(Config{PersistDedup: true, RatePerSec: 1000, RetryBase: time.Millisecond, RetryMaxDelay: time.Millisecond},
		sender, routing.NewResolver(config.NewLookup(&config.Config{}, nil)), logx.Nop(), nil, st)
	s.Start(context.Background())
	n := notice()
	n.DedupWindow = time.Hour
	groups := []transport.Group{group("g", true)}

	if rep := s.Fanout(context.Background(), groups, n); rep.Results[0].Status != StatusFailed {
		t.Fatalf("first pass should fail: %+v", rep.Results[0])
	}
	sender.mu.Lock()
	delete(sender.fail, "g")
	sender.mu.Unlock()
	if rep := s.Fanout(context.Background(), groups, n); rep.Results[0].Status != StatusSent {
		t.Fatalf("retry after failure must be sent, got %+v", rep.Results[0])
	}
	if rep := s.Fanout(context.Background(), groups, n); rep.Results[0].Status != StatusDeduped {
		t.Fatalf("after success the window applies: %+v", rep.Results[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	sender.mu.Lock()
	sent := len(sender.sent["g"])
	sender.mu.Unlock()
	if sent != 1 {
		t.Fatalf("group received %d messages, want 1", sent)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.dedup) != 1 {
		t.Fatalf("only the successful delivery is persisted: %v", st.dedup)
	}
}

func TestPersistedDedupSuppresses(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	sender := newRecordingSender()
	s := New(Config{PersistDedup: true, RatePerSec: 1000}, sender,
		routing.NewResolver(config.NewLookup(&config.Config{}, nil)), logx.Nop(), nil, st)
	n := notice()
	n.DedupWindow = time.Hour
	g := group("ok", true)
	_ = st.PutDedup(context.Background(), dedupKey(g, n), time.Now().Add(time.Hour))

	rep := s.Fanout(context.Background(), []transport.Group{g}, n)
	if rep.Results[0].Status != StatusDeduped {
		t.Fatalf("persisted window must suppress: %+v", rep.Results[0])
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %v outside jitter range", d)
	}
}

func TestStartStopPersistLoop(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	s := New(Config{PersistDedup: true, RatePerSec: 1000}, newRecordingSender(),
		routing.NewResolver(config.NewLookup(&config.Config{}, nil)), logx.Nop(), nil, st)
	s.Start(context.Background())
	if s.Supervisor() == nil {
		t.Fatal("persist loop must be running")
	}
	n := notice()
	n.DedupWindow = time.Hour
	s.Fanout(context.Background(), []transport.Group{group("ok", true)}, n)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.dedup) != 1 {
		t.Fatalf("dedup write not persisted: %v", st.dedup)
	}
}
