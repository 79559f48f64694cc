package classroom

import (
	"hash/fnv"
	"io"
)

// workKey is the content identity of a work item. Id, due date/time and
// materials are excluded.
type workKey struct {
	CourseID      string
	Title         string
	Description   string
	CreatorUserID string
	AlternateLink string
}

type announcementKey struct {
	CourseID      string
	Text          string
	CreatorUserID string
	AlternateLink string
}

func (w WorkItem) key() workKey {
	return workKey{w.CourseID, w.Title, w.Description, w.CreatorUserID, w.AlternateLink}
}

func (a Announcement) key() announcementKey {
	return announcementKey{a.CourseID, a.Text, a.CreatorUserID, a.AlternateLink}
}

// SameWorkContent reports whether two work items carry the same content.
func SameWorkContent(a, b WorkItem) bool { return a.key() == b.key() }

// SameAnnouncementContent reports whether two announcements carry the same content.
func SameAnnouncementContent(a, b Announcement) bool { return a.key() == b.key() }

// WorkHash is consistent with SameWorkContent.
func WorkHash(w WorkItem) uint64 {
	k := w.key()
	return hashFields(k.CourseID, k.Title, k.Description, k.CreatorUserID, k.AlternateLink)
}

// AnnouncementHash is consistent with SameAnnouncementContent.
func AnnouncementHash(a Announcement) uint64 {
	k := a.key()
	return hashFields(k.CourseID, k.Text, k.CreatorUserID, k.AlternateLink)
}

// SameWorkItems compares two lists as sets of content keys (order and
// duplicates do not matter).
func SameWorkItems(a, b []WorkItem) bool {
	return sameSet(keySet(a, WorkItem.key), keySet(b, WorkItem.key))
}

func SameAnnouncements(a, b []Announcement) bool {
	return sameSet(keySet(a, Announcement.key), keySet(b, Announcement.key))
}

// WorkListHash is an order-independent hash consistent with SameWorkItems.
func WorkListHash(items []WorkItem) uint64 { return setHash(items, WorkHash) }

// AnnouncementListHash is an order-independent hash consistent with SameAnnouncements.
func AnnouncementListHash(items []Announcement) uint64 { return setHash(items, AnnouncementHash) }

// NewWork returns the items of fresh whose content is not present in prev,
// keeping fresh's order.
func NewWork(prev, fresh []WorkItem) []WorkItem {
	return minus(fresh, keySet(prev, WorkItem.key), WorkItem.key)
}

// NewAnnouncements is NewWork for announcements.
func NewAnnouncements(prev, fresh []Announcement) []Announcement {
	return minus(fresh, keySet(prev, Announcement.key), Announcement.key)
}

// CourseEqual compares course metadata excluding the id.
func CourseEqual(a, b Course) bool {
	return a.Name == b.Name &&
		a.Description == b.Description &&
		a.EnrollmentCode == b.EnrollmentCode &&
		a.AlternateLink == b.AlternateLink &&
		a.TeacherGroupEmail == b.TeacherGroupEmail &&
		a.CourseGroupEmail == b.CourseGroupEmail
}

func keySet[T any, K comparable](items []T, key func(T) K) map[K]struct{} {
	m := make(map[K]struct{}, len(items))
	for _, it := range items {
		m[key(it)] = struct{}{}
	}
	return m
}

func sameSet[K comparable](a, b map[K]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func minus[T any, K comparable](items []T, exclude map[K]struct{}, key func(T) K) []T {
	var out []T
	for _, it := range items {
		if _, ok := exclude[key(it)]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// setHash sums the distinct element hashes, so order and duplicates are ignored.
func setHash[T any](items []T, h func(T) uint64) uint64 {
	seen := make(map[uint64]struct{}, len(items))
	var sum uint64
	for _, it := range items {
		v := h(it)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		sum += v
	}
	return sum
}

func hashFields(fields ...string) uint64 {
	h := fnv.New64a()
	for _, f := range fields {
		_, _ = io.WriteString(h, f)
		// Field separator so ("ab","c") and ("a","bc") differ.
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
