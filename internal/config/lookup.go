package config

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPollInterval     = time.Minute
	DefaultReminderInterval = 30 * time.Second
	DefaultRemindWithin     = 24 * time.Hour

	// EveryoneSentinel in a role_mentions list means "mention the whole group".
	EveryoneSentinel = "everyone"

	DefaultWorkColor         = 0x36474F // rgb(54,71,79)
	DefaultAnnouncementColor = 0xF17A16
	DefaultClockIcon         = "https://cdn.discordapp.com/emojis/clock.png"
	DefaultTaskIcon          = "https://ssl.gstatic.com/classroom/ic_task_black_48dp.png"
	DefaultAnnouncementIcon  = "https://ssl.gstatic.com/classroom/ic_announcement_black_48dp.png"
	DefaultAvatar            = "https://cdn.discordapp.com/embed/avatars/0.png"
)

// Messages are the resolved header templates and document labels.
type Messages struct {
	NewCourseWork       string
	UpdatedCourseWork   string
	NewAnnouncement     string
	UpdatedAnnouncement string
	Reminder            string
	UntitledWork        string
	DueFooter           string
	PostedFooter        string
	MaterialsField      string
	UnknownTeacher      string
}

// Appearance is the resolved document styling.
type Appearance struct {
	WorkColor         int
	AnnouncementColor int
	ClockIcon         string
	TaskIcon          string
	AnnouncementIcon  string
	DefaultAvatar     string
}

// Lookup answers domain questions against one config snapshot.
//
// Missing keys fall back to documented defaults. A malformed value fails only
// its own lookup: warn is called with the key and the default is returned.
type Lookup struct {
	cfg  *Config
	warn func(key string, err error)
}

func NewLookup(cfg *Config, warn func(key string, err error)) Lookup {
	if cfg == nil {
		cfg = &Config{}
	}
	if warn == nil {
		warn = func(string, error) {}
	}
	return Lookup{cfg: cfg, warn: warn}
}

func (l Lookup) Config() *Config { return l.cfg }

func (l Lookup) PollInterval() time.Duration {
	d, err := MinutesField("poll.interval_minutes", l.cfg.Poll.IntervalMinutes, DefaultPollInterval)
	if err != nil {
		l.warn("poll.interval_minutes", err)
	}
	return d
}

func (l Lookup) PollSchedule() string { return strings.TrimSpace(l.cfg.Poll.Schedule) }

func (l Lookup) ReminderEnabled() bool {
	return l.cfg.Reminder.Enabled == nil || *l.cfg.Reminder.Enabled
}

func (l Lookup) ReminderInterval() time.Duration {
	d, err := MinutesField("reminder.interval_minutes", l.cfg.Reminder.IntervalMinutes, DefaultReminderInterval)
	if err != nil {
		l.warn("reminder.interval_minutes", err)
	}
	return d
}

func (l Lookup) ReminderSchedule() string { return strings.TrimSpace(l.cfg.Reminder.Schedule) }

// RemindWithin is the due-soon lookahead window.
func (l Lookup) RemindWithin() time.Duration {
	d, err := HoursField("reminder.remind_within_hours", l.cfg.Reminder.RemindWithinHours, DefaultRemindWithin)
	if err != nil {
		l.warn("reminder.remind_within_hours", err)
	}
	return d
}

// ReminderDedupe returns 0 (re-announce every cycle) unless configured.
func (l Lookup) ReminderDedupe() time.Duration {
	d, err := ParseDurationField("reminder.dedupe_window", l.cfg.Reminder.DedupeWindow)
	if err != nil {
		l.warn("reminder.dedupe_window", err)
		return 0
	}
	return d
}

// GroupBlacklisted reports whether a whole destination group is excluded.
func (l Lookup) GroupBlacklisted(group string) bool {
	return slices.Contains(l.cfg.Routing.GroupBlacklist, group)
}

// CourseBlacklisted reports whether course is excluded for group, either
// globally or by the group's own blacklist.
func (l Lookup) CourseBlacklisted(group, course string) bool {
	if slices.Contains(l.cfg.Routing.CourseBlacklist, course) {
		return true
	}
	g, ok := l.cfg.Routing.Groups[group]
	return ok && slices.Contains(g.CourseBlacklist, course)
}

// RoleMentions returns the configured role names for course in group.
// A per-group entry wins over the per-course entry. ok is false when nothing
// is configured (or the configured list is malformed), which callers treat as
// the everyone sentinel.
func (l Lookup) RoleMentions(group, course string) (names []string, ok bool) {
	key := "routing.courses." + course + ".role_mentions"
	var raw []string
	if g, found := l.cfg.Routing.Groups[group]; found {
		if r, set := g.RoleMentions[course]; set && r != nil {
			raw = r
			key = "routing.groups." + group + ".role_mentions." + course
		}
	}
	if raw == nil {
		c, found := l.cfg.Routing.Courses[course]
		if !found || c.RoleMentions == nil {
			return nil, false
		}
		raw = c.RoleMentions
	}

	names = make([]string, 0, len(raw))
	for _, n := range raw {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(raw) > 0 && len(names) == 0 {
		l.warn(key, fmt.Errorf("no usable role names in %q", raw))
		return nil, false
	}
	return names, true
}

// TeacherImage returns the configured avatar override for course.
// Scheme-less "//host/path" URLs are completed with https.
func (l Lookup) TeacherImage(course string) (string, bool) {
	c, ok := l.cfg.Routing.Courses[course]
	if !ok || strings.TrimSpace(c.TeacherImage) == "" {
		return "", false
	}
	u, err := NormalizeImageURL(c.TeacherImage)
	if err != nil {
		l.warn("routing.courses."+course+".teacher_image", err)
		return "", false
	}
	return u, true
}

// NormalizeImageURL completes scheme-less URLs and rejects non-http(s) ones.
func NormalizeImageURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("not an http(s) url: %q", raw)
	}
	return s, nil
}

func (l Lookup) Messages() Messages {
	m := l.cfg.Messages
	return Messages{
		NewCourseWork:       orDefault(m.NewCourseWork, "New coursework in {course}"),
		UpdatedCourseWork:   orDefault(m.UpdatedCourseWork, "Updated coursework in {course}"),
		NewAnnouncement:     orDefault(m.NewAnnouncement, "New announcement in {course}"),
		UpdatedAnnouncement: orDefault(m.UpdatedAnnouncement, "Updated announcement in {course}"),
		Reminder:            orDefault(m.Reminder, "Due soon in {course}"),
		UntitledWork:        orDefault(m.UntitledWork, "Untitled"),
		DueFooter:           orDefault(m.DueFooter, "Due"),
		PostedFooter:        orDefault(m.PostedFooter, "Posted"),
		MaterialsField:      orDefault(m.MaterialsField, "Material:"),
		UnknownTeacher:      orDefault(m.UnknownTeacher, "Unknown teacher"),
	}
}

func (l Lookup) Appearance() Appearance {
	a := l.cfg.Appearance
	return Appearance{
		WorkColor:         l.color("appearance.work_color", a.WorkColor, DefaultWorkColor),
		AnnouncementColor: l.color("appearance.announcement_color", a.AnnouncementColor, DefaultAnnouncementColor),
		ClockIcon:         orDefault(a.ClockIcon, DefaultClockIcon),
		TaskIcon:          orDefault(a.TaskIcon, DefaultTaskIcon),
		AnnouncementIcon:  orDefault(a.AnnouncementIcon, DefaultAnnouncementIcon),
		DefaultAvatar:     orDefault(a.DefaultAvatar, DefaultAvatar),
	}
}

func (l Lookup) color(key, raw string, def int) int {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || len(s) != 6 {
		l.warn(key, fmt.Errorf("invalid colour %q (want #RRGGBB)", raw))
		return def
	}
	return int(v)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
