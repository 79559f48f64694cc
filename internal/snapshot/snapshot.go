// Package snapshot holds the last-known course content, builds fresh
// snapshots from the upstream API and diffs consecutive snapshots.
package snapshot

import (
	"slices"
	"sync/atomic"

	"classbot/internal/classroom"
)

// Entry is one course with its content lists. Lists are never nil.
type Entry struct {
	Course        classroom.Course
	Work          []classroom.WorkItem
	Announcements []classroom.Announcement
}

// Snapshot maps course display name to Entry. It is immutable once built.
type Snapshot struct {
	entries map[string]Entry
}

// New copies entries and replaces nil lists with empty ones.
func New(entries map[string]Entry) *Snapshot {
	m := make(map[string]Entry, len(entries))
	for name, e := range entries {
		m[name] = normalize(e)
	}
	return &Snapshot{entries: m}
}

// Empty is the snapshot before the first successful fetch.
func Empty() *Snapshot { return &Snapshot{entries: map[string]Entry{}} }

func normalize(e Entry) Entry {
	if e.Work == nil {
		e.Work = []classroom.WorkItem{}
	}
	if e.Announcements == nil {
		e.Announcements = []classroom.Announcement{}
	}
	return e
}

func (s *Snapshot) Len() int { return len(s.entries) }

func (s *Snapshot) Get(name string) (Entry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

// Names returns course names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Courses returns the courses in name order.
func (s *Snapshot) Courses() []classroom.Course {
	out := make([]classroom.Course, 0, len(s.entries))
	for _, n := range s.Names() {
		out = append(out, s.entries[n].Course)
	}
	return out
}

// Store publishes the current snapshot. Load never returns nil.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	s := &Store{}
	s.cur.Store(Empty())
	return s
}

func (s *Store) Load() *Snapshot { return s.cur.Load() }

// Swap installs next as a whole and returns the previous snapshot.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	if next == nil {
		next = Empty()
	}
	return s.cur.Swap(next)
}
