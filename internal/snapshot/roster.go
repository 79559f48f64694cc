package snapshot

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"classbot/internal/classroom"
	"classbot/pkg/logx"
)

type TeacherSource interface {
	ListTeachers(ctx context.Context, courseID string) ([]classroom.Teacher, error)
}

// Roster maps course id to its teachers. It is filled once, after the first
// successful fetch, and read concurrently by formatters afterwards.
type Roster struct {
	mu       sync.RWMutex
	byCourse map[string][]classroom.Teacher
	loaded   bool
}

func NewRoster() *Roster { return &Roster{byCourse: map[string][]classroom.Teacher{}} }

func (r *Roster) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Load fetches teachers for every course. Per-course failures are logged and
// leave that course without teachers.
func (r *Roster) Load(ctx context.Context, src TeacherSource, courses []classroom.Course, concurrency int, log logx.Logger) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	var mu sync.Mutex
	found := make(map[string][]classroom.Teacher, len(courses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, c := range courses {
		g.Go(func() error {
			ts, err := src.ListTeachers(gctx, c.ID)
			if err != nil {
				log.Error("list teachers failed", logx.String("course", c.Name), logx.Err(err))
				return nil
			}
			mu.Lock()
			found[c.ID] = ts
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.byCourse = found
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Lookup returns the teacher whose user id matches creatorID, else the
// course's first teacher, else nil.
func (r *Roster) Lookup(courseID, creatorID string) *classroom.Teacher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts := r.byCourse[courseID]
	if len(ts) == 0 {
		return nil
	}
	for i := range ts {
		if ts[i].UserID == creatorID {
			t := ts[i]
			return &t
		}
	}
	t := ts[0]
	return &t
}
