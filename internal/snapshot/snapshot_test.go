package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"classbot/internal/classroom"
	"classbot/pkg/logx"
)

var mathCourse = classroom.Course{ID: "c1", Name: "Math"}

type fakeSource struct {
	mu      sync.Mutex
	courses []classroom.Course
	listErr error
	work    map[string][]classroom.WorkItem
	workErr map[string]error
	anns    map[string][]classroom.Announcement
	annErr  map[string]error
	teach   map[string][]classroom.Teacher
	calls   int
}

func (f *fakeSource) ListCourses(context.Context) ([]classroom.Course, error) {
	return f.courses, f.listErr
}

func (f *fakeSource) ListCourseWork(_ context.Context, id string) ([]classroom.WorkItem, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.work[id], f.workErr[id]
}

func (f *fakeSource) ListAnnouncements(_ context.Context, id string) ([]classroom.Announcement, error) {
	return f.anns[id], f.annErr[id]
}

func (f *fakeSource) ListTeachers(_ context.Context, id string) ([]classroom.Teacher, error) {
	return f.teach[id], nil
}

func snap(course classroom.Course, work ...classroom.WorkItem) *Snapshot {
	return New(map[string]Entry{course.Name: {Course: course, Work: work}})
}

func TestStoreLoadNeverNil(t *testing.T) {
	t.Parallel()
	s := NewStore()
	if s.Load() == nil || s.Load().Len() != 0 {
		t.Fatalf("initial snapshot must be empty and non-nil")
	}
	next := snap(mathCourse)
	if prev := s.Swap(next); prev.Len() != 0 {
		t.Fatalf("unexpected previous snapshot")
	}
	if s.Load() != next {
		t.Fatalf("swap did not install snapshot")
	}
	e, _ := s.Load().Get("Math")
	if e.Work == nil || e.Announcements == nil {
		t.Fatalf("lists must never be nil")
	}
}

func TestDiffNewWorkItem(t *testing.T) {
	t.Parallel()
	prev := snap(mathCourse, classroom.WorkItem{ID: "1", Title: "HW1"})
	fresh := snap(mathCourse, classroom.WorkItem{ID: "1", Title: "HW1"}, classroom.WorkItem{ID: "2", Title: "HW2"})

	recs := Diff(prev, fresh)
	if len(recs) != 1 || len(recs[0].Work) != 1 {
		t.Fatalf("unexpected records: %+v", recs)
	}
	got := recs[0].Work[0]
	if got.Item.ID != "2" || got.Kind != ChangeNew {
		t.Fatalf("want new id 2, got %+v", got)
	}
	if len(recs[0].Announcements) != 0 {
		t.Fatalf("no announcement changes expected")
	}
}

func TestDiffUpdatedWorkItem(t *testing.T) {
	t.Parallel()
	prev := snap(mathCourse, classroom.WorkItem{ID: "1", Title: "HW1"}, classroom.WorkItem{ID: "2", Title: "HW2"})
	fresh := snap(mathCourse, classroom.WorkItem{ID: "1", Title: "HW1-revised"})

	recs := Diff(prev, fresh)
	if len(recs) != 1 || len(recs[0].Work) != 1 {
		t.Fatalf("unexpected records: %+v", recs)
	}
	got := recs[0].Work[0]
	if got.Item.ID != "1" || got.Kind != ChangeUpdated {
		t.Fatalf("want updated id 1, got %+v", got)
	}
}

func TestDiffIgnoresIDOnlyChanges(t *testing.T) {
	t.Parallel()
	prev := snap(mathCourse, classroom.WorkItem{ID: "1", Title: "HW1"})
	fresh := snap(mathCourse, classroom.WorkItem{ID: "77", Title: "HW1"})
	if recs := Diff(prev, fresh); len(recs) != 0 {
		t.Fatalf("id-only change must not produce records: %+v", recs)
	}
}

func TestDiffFirstSightingSuppressed(t *testing.T) {
	t.Parallel()
	prev := Empty()
	fresh := snap(mathCourse, classroom.WorkItem{ID: "1", Title: "HW1"})
	if recs := Diff(prev, fresh); len(recs) != 0 {
		t.Fatalf("first sighting must not produce records: %+v", recs)
	}
}

func TestDiffSortedAndAnnouncements(t *testing.T) {
	t.Parallel()
	art := classroom.Course{ID: "c2", Name: "Art"}
	prev := New(map[string]Entry{
		"Math": {Course: mathCourse},
		"Art":  {Course: art},
	})
	fresh := New(map[string]Entry{
		"Math": {Course: mathCourse, Announcements: []classroom.Announcement{{ID: "a", Text: "hi"}}},
		"Art":  {Course: art, Work: []classroom.WorkItem{{ID: "w", Title: "Paint"}}},
	})
	recs := Diff(prev, fresh)
	if len(recs) != 2 || recs[0].Course.Name != "Art" || recs[1].Course.Name != "Math" {
		t.Fatalf("unexpected order: %+v", recs)
	}
	if len(recs[1].Announcements) != 1 || recs[1].Announcements[0].Kind != ChangeNew {
		t.Fatalf("expected new announcement, got %+v", recs[1])
	}
	if Count(recs) != 2 {
		t.Fatalf("Count = %d", Count(recs))
	}
}

func TestFetchKeepsPreviousListOnSubRequestError(t *testing.T) {
	t.Parallel()
	old := classroom.WorkItem{ID: "1", Title: "HW1"}
	prev := New(map[string]Entry{"Math": {
		Course:        mathCourse,
		Work:          []classroom.WorkItem{old},
		Announcements: []classroom.Announcement{{ID: "a", Text: "old"}},
	}})
	src := &fakeSource{
		courses: []classroom.Course{mathCourse},
		workErr: map[string]error{"c1": errors.New("boom")},
		anns:    map[string][]classroom.Announcement{"c1": {}},
	}
	f := NewFetcher(src, 2, logx.Nop())
	got, stats, err := f.Fetch(context.Background(), prev)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if stats.Failed != 1 || stats.Courses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	e, _ := got.Get("Math")
	if len(e.Work) != 1 || e.Work[0].ID != "1" {
		t.Fatalf("work list must be carried over, got %+v", e.Work)
	}
	if len(e.Announcements) != 0 {
		t.Fatalf("explicit empty list must replace, got %+v", e.Announcements)
	}
}

func TestFetchAbsentListKeepsPrevious(t *testing.T) {
	t.Parallel()
	prev := snap(mathCourse, classroom.WorkItem{ID: "1", Title: "HW1"})
	src := &fakeSource{courses: []classroom.Course{mathCourse}}
	got, _, err := NewFetcher(src, 0, logx.Nop()).Fetch(context.Background(), prev)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	e, _ := got.Get("Math")
	if len(e.Work) != 1 {
		t.Fatalf("absent list must keep previous, got %+v", e.Work)
	}
}

func TestFetchCourseListFailureAborts(t *testing.T) {
	t.Parallel()
	src := &fakeSource{listErr: classroom.ErrNoCourses}
	got, _, err := NewFetcher(src, 0, logx.Nop()).Fetch(context.Background(), Empty())
	if !errors.Is(err, classroom.ErrNoCourses) || got != nil {
		t.Fatalf("expected abort, got %v %v", got, err)
	}
	if src.calls != 0 {
		t.Fatalf("no sub-requests expected")
	}
}

func TestFetchDuplicateNameLaterWins(t *testing.T) {
	t.Parallel()
	a := classroom.Course{ID: "c1", Name: "Math"}
	b := classroom.Course{ID: "c9", Name: "Math", Section: "B"}
	src := &fakeSource{
		courses: []classroom.Course{a, b},
		work: map[string][]classroom.WorkItem{
			"c1": {{ID: "x", Title: "from a"}},
			"c9": {{ID: "y", Title: "from b"}},
		},
	}
	got, _, err := NewFetcher(src, 4, logx.Nop()).Fetch(context.Background(), Empty())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	e, _ := got.Get("Math")
	if e.Course.ID != "c9" || len(e.Work) != 1 || e.Work[0].ID != "y" {
		t.Fatalf("later course must win: %+v", e)
	}
}

func TestRosterLookup(t *testing.T) {
	t.Parallel()
	src := &fakeSource{teach: map[string][]classroom.Teacher{
		"c1": {{UserID: "t1", FullName: "Ada"}, {UserID: "t2", FullName: "Grace"}},
	}}
	r := NewRoster()
	if r.Lookup("c1", "t2") != nil {
		t.Fatalf("empty roster must return nil")
	}
	if err := r.Load(context.Background(), src, []classroom.Course{mathCourse, {ID: "c2", Name: "Art"}}, 2, logx.Nop()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !r.Loaded() {
		t.Fatalf("roster must be loaded")
	}
	if got := r.Lookup("c1", "t2"); got == nil || got.FullName != "Grace" {
		t.Fatalf("creator match expected, got %+v", got)
	}
	if got := r.Lookup("c1", "nobody"); got == nil || got.FullName != "Ada" {
		t.Fatalf("first teacher fallback expected, got %+v", got)
	}
	if r.Lookup("c2", "t1") != nil {
		t.Fatalf("course without teachers must return nil")
	}
}
