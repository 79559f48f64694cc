package notifier

import (
	"strings"
	"testing"
	"time"

	"classbot/internal/classroom"
	"classbot/internal/config"
)

type staticTeachers map[string]classroom.Teacher

func (s staticTeachers) Lookup(courseID, _ string) *classroom.Teacher {
	t, ok := s[courseID]
	if !ok {
		return nil
	}
	return &t
}

func ip(v int) *int { return &v }

func TestFormatWork(t *testing.T) {
	t.Parallel()
	f := NewFormatter(config.NewLookup(&config.Config{}, nil),
		staticTeachers{"c1": {FullName: "Ada", PhotoURL: "//lh3.example/photo.jpg"}})
	c := classroom.Course{ID: "c1", Name: "Math", Section: "A", AlternateLink: "https://c"}
	w := classroom.WorkItem{
		ID:          "w1",
		Description: "Solve",
		DueDate:     &classroom.Date{Year: ip(2024), Month: ip(5), Day: ip(2)},
		DueTime:     &classroom.TimeOfDay{Hours: ip(12)},
		Materials:   []classroom.Material{classroom.Link{MaterialRef: classroom.MaterialRef{Title: "Site", URL: "https://l"}}},
	}
	n := f.Work(KindNewWork, c, w, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	if n.Header != "New coursework in Math" {
		t.Fatalf("header = %q", n.Header)
	}
	d := n.Document
	if d.Title != "Untitled" || d.Color != config.DefaultWorkColor || d.Footer.Text != "Due" {
		t.Fatalf("unexpected document %+v", d)
	}
	if !d.Timestamp.Equal(time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp = %v", d.Timestamp)
	}
	if d.Author.Name != "Math – A" || d.Author.IconURL != "https://lh3.example/photo.jpg" {
		t.Fatalf("author = %+v", d.Author)
	}
	if len(d.Fields) != 1 || d.Fields[0].Name != "Material:" || !strings.Contains(d.Fields[0].Value, "[Site](https://l)") {
		t.Fatalf("fields = %+v", d.Fields)
	}
}

func TestFormatAnnouncementFallbacks(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Messages: config.MessagesConfig{UpdatedAnnouncement: "{course} changed"},
		Routing: config.RoutingConfig{Courses: map[string]config.CourseRouting{
			"Art": {TeacherImage: "//img.example/t.png"},
		}},
	}
	f := NewFormatter(config.NewLookup(cfg, nil), nil)
	created := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	n := f.Announcement(KindUpdatedAnnouncement, classroom.Course{ID: "c2", Name: "Art"},
		classroom.Announcement{ID: "a1", Text: "hello", CreationTime: created})

	if n.Header != "Art changed" || n.EntityID != "a1" {
		t.Fatalf("unexpected notice %+v", n)
	}
	d := n.Document
	if d.Title != "Unknown teacher" || d.Color != config.DefaultAnnouncementColor || !d.Timestamp.Equal(created) {
		t.Fatalf("unexpected document %+v", d)
	}
	if d.Author.Name != "Art" || d.Author.IconURL != "https://img.example/t.png" {
		t.Fatalf("author = %+v", d.Author)
	}
	if d.Fields != nil {
		t.Fatalf("no material field expected")
	}
}

func TestFormatDefaultAvatarAndReminder(t *testing.T) {
	t.Parallel()
	f := NewFormatter(config.NewLookup(&config.Config{}, nil), staticTeachers{})
	n := f.Reminder(classroom.Course{ID: "c1", Name: "Math"}, classroom.WorkItem{ID: "w", Title: "HW"}, time.Now())
	if n.Kind != KindReminder || n.Header != "Due soon in Math" {
		t.Fatalf("unexpected reminder %+v", n)
	}
	if n.Document.Author.IconURL != config.DefaultAvatar {
		t.Fatalf("expected default avatar, got %q", n.Document.Author.IconURL)
	}
	if !n.Document.Timestamp.IsZero() {
		t.Fatal("no due date means no timestamp")
	}
}
