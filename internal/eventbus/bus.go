package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is an in-memory signal from the loops and the notifier to metrics,
// debug logging and health reporting. Data is one of the payload types in
// events.go.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and the miss is counted.
type Bus interface {
	Publish(e Event)
	// Subscribe receives events of the given types, or all events when no
	// type is named. unsubscribe closes the channel and is idempotent.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
	// Dropped reports how many deliveries were skipped on full buffers.
	Dropped() uint64
}

const defaultBuffer = 16

type subscriber struct {
	ch     chan Event
	filter map[string]struct{}
}

func (s *subscriber) wants(typ string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[typ]
	return ok
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Uint64
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[*subscriber]struct{}{}}
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends are non-blocking, so holding the read lock is cheap, and it keeps
	// unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.filter = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.filter[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
