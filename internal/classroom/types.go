package classroom

import "time"

type Course struct {
	ID                 string
	Name               string
	Section            string
	DescriptionHeading string
	Description        string
	Room               string
	EnrollmentCode     string
	AlternateLink      string
	TeacherGroupEmail  string
	CourseGroupEmail   string
	OwnerID            string
	State              string
}

// Date is a calendar date in UTC. Nil fields were not set upstream.
type Date struct {
	Year  *int
	Month *int
	Day   *int
}

// TimeOfDay is a wall-clock time in UTC. Nil fields were not set upstream.
type TimeOfDay struct {
	Hours   *int
	Minutes *int
	Seconds *int
}

type WorkItem struct {
	ID            string
	CourseID      string
	Title         string
	Description   string
	CreatorUserID string
	AlternateLink string
	State         string
	WorkType      string
	DueDate       *Date
	DueTime       *TimeOfDay
	Materials     []Material
	CreationTime  time.Time
	UpdateTime    time.Time
}

type Announcement struct {
	ID            string
	CourseID      string
	Text          string
	CreatorUserID string
	AlternateLink string
	State         string
	Materials     []Material
	CreationTime  time.Time
	UpdateTime    time.Time
}

type Teacher struct {
	CourseID string
	UserID   string
	FullName string
	PhotoURL string
	Email    string
}
