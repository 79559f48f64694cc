package notifier

import (
	"strings"
	"sync/atomic"
	"time"

	"classbot/internal/classroom"
	"classbot/internal/config"
	"classbot/internal/transport"
)

// TeacherLookup resolves the teacher shown on a document.
type TeacherLookup interface {
	Lookup(courseID, creatorID string) *classroom.Teacher
}

// Formatter builds destination-agnostic notices from course entities.
type Formatter struct {
	lookup   atomic.Pointer[config.Lookup]
	teachers TeacherLookup
}

func NewFormatter(l config.Lookup, teachers TeacherLookup) *Formatter {
	f := &Formatter{teachers: teachers}
	f.Apply(l)
	return f
}

func (f *Formatter) Apply(l config.Lookup) { f.lookup.Store(&l) }

func (f *Formatter) Work(kind Kind, c classroom.Course, w classroom.WorkItem, now time.Time) Notice {
	l := f.lookup.Load()
	msg, look := l.Messages(), l.Appearance()

	title := strings.TrimSpace(w.Title)
	if title == "" {
		title = msg.UntitledWork
	}
	doc := transport.Document{
		Title:       title,
		Description: w.Description,
		URL:         w.AlternateLink,
		Color:       look.WorkColor,
		Footer:      transport.Footer{Text: msg.DueFooter, IconURL: look.ClockIcon},
		Thumbnail:   look.TaskIcon,
		Author:      f.author(l, c, f.teacher(c.ID, w.CreatorUserID), "–"),
		Fields:      materialFields(msg.MaterialsField, w.Materials),
	}
	if due, ok := w.DueInstant(now); ok {
		doc.Timestamp = due
	}
	return Notice{
		Kind:     kind,
		Course:   c,
		EntityID: w.ID,
		Header:   expand(template(msg, kind), c.Name),
		Document: doc,
	}
}

func (f *Formatter) Announcement(kind Kind, c classroom.Course, a classroom.Announcement) Notice {
	l := f.lookup.Load()
	msg, look := l.Messages(), l.Appearance()

	teacher := f.teacher(c.ID, a.CreatorUserID)
	title := msg.UnknownTeacher
	if teacher != nil && teacher.FullName != "" {
		title = teacher.FullName
	}
	doc := transport.Document{
		Title:       title,
		Description: a.Text,
		URL:         a.AlternateLink,
		Color:       look.AnnouncementColor,
		Timestamp:   a.CreationTime,
		Footer:      transport.Footer{Text: msg.PostedFooter, IconURL: look.ClockIcon},
		Thumbnail:   look.AnnouncementIcon,
		Author:      f.author(l, c, teacher, "-"),
		Fields:      materialFields(msg.MaterialsField, a.Materials),
	}
	return Notice{
		Kind:     kind,
		Course:   c,
		EntityID: a.ID,
		Header:   expand(template(msg, kind), c.Name),
		Document: doc,
	}
}

// Reminder is a work-item notice with the reminder header.
func (f *Formatter) Reminder(c classroom.Course, w classroom.WorkItem, now time.Time) Notice {
	return f.Work(KindReminder, c, w, now)
}

func (f *Formatter) teacher(courseID, creatorID string) *classroom.Teacher {
	if f.teachers == nil {
		return nil
	}
	return f.teachers.Lookup(courseID, creatorID)
}

func (f *Formatter) author(l *config.Lookup, c classroom.Course, t *classroom.Teacher, sep string) transport.Author {
	name := c.Name
	if c.Section != "" {
		name = c.Name + " " + sep + " " + c.Section
	}
	return transport.Author{Name: name, URL: c.AlternateLink, IconURL: teacherImage(l, c.Name, t)}
}

// teacherImage prefers the configured override, then the teacher's photo,
// then the default avatar.
func teacherImage(l *config.Lookup, course string, t *classroom.Teacher) string {
	if img, ok := l.TeacherImage(course); ok {
		return img
	}
	if t != nil && t.PhotoURL != "" {
		if u, err := config.NormalizeImageURL(t.PhotoURL); err == nil {
			return u
		}
	}
	return l.Appearance().DefaultAvatar
}

func materialFields(name string, ms []classroom.Material) []transport.Field {
	if len(ms) == 0 {
		return nil
	}
	var b strings.Builder
	for _, m := range ms {
		r := m.Ref()
		title := r.Title
		if title == "" {
			title = r.URL
		}
		b.WriteString("[" + title + "](" + r.URL + ")\n")
	}
	return []transport.Field{{Name: name, Value: b.String()}}
}

func template(m config.Messages, kind Kind) string {
	switch kind {
	case KindNewWork:
		return m.NewCourseWork
	case KindUpdatedWork:
		return m.UpdatedCourseWork
	case KindNewAnnouncement:
		return m.NewAnnouncement
	case KindUpdatedAnnouncement:
		return m.UpdatedAnnouncement
	case KindReminder:
		return m.Reminder
	default:
		return "{course}"
	}
}

func expand(tmpl, course string) string { return strings.ReplaceAll(tmpl, "{course}", course) }
