package snapshot

import "classbot/internal/classroom"

type ChangeKind int

const (
	ChangeNew ChangeKind = iota + 1
	ChangeUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

type WorkChange struct {
	Kind ChangeKind
	Item classroom.WorkItem
}

type AnnouncementChange struct {
	Kind ChangeKind
	Item classroom.Announcement
}

// Record lists the new or changed entities of one course.
type Record struct {
	Course        classroom.Course
	Work          []WorkChange
	Announcements []AnnouncementChange
}

func (r Record) Empty() bool { return len(r.Work) == 0 && len(r.Announcements) == 0 }

// Diff compares two snapshots. Only courses present in both take part, so
// the first sighting of a course never produces records. Records come back
// in course-name order.
func Diff(prev, fresh *Snapshot) []Record {
	if prev == nil || fresh == nil {
		return nil
	}
	var out []Record
	for _, name := range fresh.Names() {
		cur, _ := fresh.Get(name)
		old, ok := prev.Get(name)
		if !ok {
			continue
		}
		rec := Record{Course: cur.Course}
		sameCourse := classroom.CourseEqual(old.Course, cur.Course)

		if !sameCourse || !classroom.SameWorkItems(old.Work, cur.Work) {
			ids := idSet(old.Work, func(w classroom.WorkItem) string { return w.ID })
			for _, w := range classroom.NewWork(old.Work, cur.Work) {
				rec.Work = append(rec.Work, WorkChange{Kind: classify(ids, w.ID), Item: w})
			}
		}
		if !sameCourse || !classroom.SameAnnouncements(old.Announcements, cur.Announcements) {
			ids := idSet(old.Announcements, func(a classroom.Announcement) string { return a.ID })
			for _, a := range classroom.NewAnnouncements(old.Announcements, cur.Announcements) {
				rec.Announcements = append(rec.Announcements, AnnouncementChange{Kind: classify(ids, a.ID), Item: a})
			}
		}
		if !rec.Empty() {
			out = append(out, rec)
		}
	}
	return out
}

func idSet[T any](items []T, id func(T) string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[id(it)] = struct{}{}
	}
	return m
}

func classify(prevIDs map[string]struct{}, id string) ChangeKind {
	if _, ok := prevIDs[id]; ok {
		return ChangeUpdated
	}
	return ChangeNew
}

// Count returns the number of entity changes across records.
func Count(records []Record) int {
	n := 0
	for _, r := range records {
		n += len(r.Work) + len(r.Announcements)
	}
	return n
}
