package snapshot

import (
	"context"

	"golang.org/x/sync/errgroup"

	"classbot/internal/classroom"
	"classbot/pkg/logx"
)

const DefaultConcurrency = 8

// Source is the subset of the upstream client the Fetcher needs.
type Source interface {
	ListCourses(ctx context.Context) ([]classroom.Course, error)
	ListCourseWork(ctx context.Context, courseID string) ([]classroom.WorkItem, error)
	ListAnnouncements(ctx context.Context, courseID string) ([]classroom.Announcement, error)
}

type Fetcher struct {
	src         Source
	concurrency int
	log         logx.Logger
}

func NewFetcher(src Source, concurrency int, log logx.Logger) *Fetcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Fetcher{src: src, concurrency: concurrency, log: log.With(logx.String("comp", "fetcher"))}
}

type subKind int

const (
	subWork subKind = iota
	subAnnouncements
)

type subResult struct {
	courseID string
	name     string
	kind     subKind
	work     []classroom.WorkItem
	anns     []classroom.Announcement
	err      error
}

// FetchStats describes one fetch.
type FetchStats struct {
	Courses int
	Failed  int
}

// Fetch builds a fresh snapshot on top of prev.
//
// A course-list failure aborts the fetch. A failed or list-less sub-request
// keeps that course's previous list. Sub-requests run concurrently; their
// results are applied by the calling goroutine only.
func (f *Fetcher) Fetch(ctx context.Context, prev *Snapshot) (*Snapshot, FetchStats, error) {
	if prev == nil {
		prev = Empty()
	}
	courses, err := f.src.ListCourses(ctx)
	if err != nil {
		return nil, FetchStats{}, err
	}

	entries := make(map[string]Entry, len(courses))
	for _, c := range courses {
		e := Entry{Course: c}
		if old, ok := prev.Get(c.Name); ok {
			e.Work, e.Announcements = old.Work, old.Announcements
		}
		// Later courses win a name clash.
		entries[c.Name] = e
	}

	results := make(chan subResult, 2*len(courses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, c := range courses {
		g.Go(func() error {
			work, err := f.src.ListCourseWork(gctx, c.ID)
			results <- subResult{courseID: c.ID, name: c.Name, kind: subWork, work: work, err: err}
			return nil
		})
		g.Go(func() error {
			anns, err := f.src.ListAnnouncements(gctx, c.ID)
			results <- subResult{courseID: c.ID, name: c.Name, kind: subAnnouncements, anns: anns, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	if err := ctx.Err(); err != nil {
		return nil, FetchStats{}, err
	}

	stats := FetchStats{Courses: len(entries)}
	for r := range results {
		e, ok := entries[r.name]
		if !ok || e.Course.ID != r.courseID {
			continue
		}
		if r.err != nil {
			stats.Failed++
			f.log.Error("sub-request failed, keeping previous list",
				logx.String("course", r.name),
				logx.String("list", r.kind.String()),
				logx.Err(r.err))
			continue
		}
		switch r.kind {
		case subWork:
			if r.work != nil {
				e.Work = r.work
			}
		case subAnnouncements:
			if r.anns != nil {
				e.Announcements = r.anns
			}
		}
		entries[r.name] = e
	}
	return New(entries), stats, nil
}

func (k subKind) String() string {
	if k == subWork {
		return "coursework"
	}
	return "announcements"
}
