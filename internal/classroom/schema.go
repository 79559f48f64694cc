package classroom

import "time"

// Wire shapes of the Classroom v1 REST API. Repeated fields are pointers to
// slices so an omitted list can be told apart from an empty one.

type wireCourse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Section            string `json:"section"`
	DescriptionHeading string `json:"descriptionHeading"`
	Description        string `json:"description"`
	Room               string `json:"room"`
	OwnerID            string `json:"ownerId"`
	EnrollmentCode     string `json:"enrollmentCode"`
	CourseState        string `json:"courseState"`
	AlternateLink      string `json:"alternateLink"`
	TeacherGroupEmail  string `json:"teacherGroupEmail"`
	CourseGroupEmail   string `json:"courseGroupEmail"`
}

type listCoursesResponse struct {
	Courses       *[]wireCourse `json:"courses"`
	NextPageToken string        `json:"nextPageToken"`
}

type wireDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

type wireTimeOfDay struct {
	Hours   *int `json:"hours"`
	Minutes *int `json:"minutes"`
	Seconds *int `json:"seconds"`
}

type wireDriveFile struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	AlternateLink string `json:"alternateLink"`
	ThumbnailURL  string `json:"thumbnailUrl"`
}

type wireMaterial struct {
	DriveFile *struct {
		DriveFile wireDriveFile `json:"driveFile"`
		ShareMode string        `json:"shareMode"`
	} `json:"driveFile"`
	YouTubeVideo *struct {
		ID            string `json:"id"`
		Title         string `json:"title"`
		AlternateLink string `json:"alternateLink"`
		ThumbnailURL  string `json:"thumbnailUrl"`
	} `json:"youtubeVideo"`
	Link *struct {
		URL          string `json:"url"`
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"link"`
	Form *struct {
		FormURL      string `json:"formUrl"`
		ResponseURL  string `json:"responseUrl"`
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"form"`
}

type wireCourseWork struct {
	CourseID      string         `json:"courseId"`
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Materials     []wireMaterial `json:"materials"`
	State         string         `json:"state"`
	AlternateLink string         `json:"alternateLink"`
	CreationTime  time.Time      `json:"creationTime"`
	UpdateTime    time.Time      `json:"updateTime"`
	DueDate       *wireDate      `json:"dueDate"`
	DueTime       *wireTimeOfDay `json:"dueTime"`
	WorkType      string         `json:"workType"`
	CreatorUserID string         `json:"creatorUserId"`
}

type listCourseWorkResponse struct {
	CourseWork    *[]wireCourseWork `json:"courseWork"`
	NextPageToken string            `json:"nextPageToken"`
}

type wireAnnouncement struct {
	CourseID      string         `json:"courseId"`
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	Materials     []wireMaterial `json:"materials"`
	State         string         `json:"state"`
	AlternateLink string         `json:"alternateLink"`
	CreationTime  time.Time      `json:"creationTime"`
	UpdateTime    time.Time      `json:"updateTime"`
	CreatorUserID string         `json:"creatorUserId"`
}

type listAnnouncementsResponse struct {
	Announcements *[]wireAnnouncement `json:"announcements"`
	NextPageToken string              `json:"nextPageToken"`
}

type wireTeacher struct {
	CourseID string `json:"courseId"`
	UserID   string `json:"userId"`
	Profile  struct {
		ID   string `json:"id"`
		Name struct {
			FullName string `json:"fullName"`
		} `json:"name"`
		EmailAddress string `json:"emailAddress"`
		PhotoURL     string `json:"photoUrl"`
	} `json:"profile"`
}

type listTeachersResponse struct {
	Teachers      *[]wireTeacher `json:"teachers"`
	NextPageToken string         `json:"nextPageToken"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (w wireCourse) domain() Course {
	return Course{
		ID:                 w.ID,
		Name:               w.Name,
		Section:            w.Section,
		DescriptionHeading: w.DescriptionHeading,
		Description:        w.Description,
		Room:               w.Room,
		EnrollmentCode:     w.EnrollmentCode,
		AlternateLink:      w.AlternateLink,
		TeacherGroupEmail:  w.TeacherGroupEmail,
		CourseGroupEmail:   w.CourseGroupEmail,
		OwnerID:            w.OwnerID,
		State:              w.CourseState,
	}
}

func (w wireCourseWork) domain() WorkItem {
	item := WorkItem{
		ID:            w.ID,
		CourseID:      w.CourseID,
		Title:         w.Title,
		Description:   w.Description,
		CreatorUserID: w.CreatorUserID,
		AlternateLink: w.AlternateLink,
		State:         w.State,
		WorkType:      w.WorkType,
		Materials:     materials(w.Materials),
		CreationTime:  w.CreationTime,
		UpdateTime:    w.UpdateTime,
	}
	if w.DueDate != nil {
		item.DueDate = &Date{Year: w.DueDate.Year, Month: w.DueDate.Month, Day: w.DueDate.Day}
	}
	if w.DueTime != nil {
		item.DueTime = &TimeOfDay{Hours: w.DueTime.Hours, Minutes: w.DueTime.Minutes, Seconds: w.DueTime.Seconds}
	}
	return item
}

func (w wireAnnouncement) domain() Announcement {
	return Announcement{
		ID:            w.ID,
		CourseID:      w.CourseID,
		Text:          w.Text,
		CreatorUserID: w.CreatorUserID,
		AlternateLink: w.AlternateLink,
		State:         w.State,
		Materials:     materials(w.Materials),
		CreationTime:  w.CreationTime,
		UpdateTime:    w.UpdateTime,
	}
}

func (w wireTeacher) domain() Teacher {
	return Teacher{
		CourseID: w.CourseID,
		UserID:   w.UserID,
		FullName: w.Profile.Name.FullName,
		PhotoURL: w.Profile.PhotoURL,
		Email:    w.Profile.EmailAddress,
	}
}

// materials keeps only entries that set exactly one known variant.
func materials(in []wireMaterial) []Material {
	if len(in) == 0 {
		return nil
	}
	out := make([]Material, 0, len(in))
	for _, m := range in {
		switch {
		case m.DriveFile != nil:
			f := m.DriveFile.DriveFile
			out = append(out, DriveFile{
				ID:          f.ID,
				ShareMode:   m.DriveFile.ShareMode,
				MaterialRef: MaterialRef{Title: f.Title, URL: f.AlternateLink, Thumbnail: f.ThumbnailURL},
			})
		case m.YouTubeVideo != nil:
			v := m.YouTubeVideo
			out = append(out, YouTubeVideo{
				ID:          v.ID,
				MaterialRef: MaterialRef{Title: v.Title, URL: v.AlternateLink, Thumbnail: v.ThumbnailURL},
			})
		case m.Link != nil:
			l := m.Link
			out = append(out, Link{MaterialRef: MaterialRef{Title: l.Title, URL: l.URL, Thumbnail: l.ThumbnailURL}})
		case m.Form != nil:
			f := m.Form
			out = append(out, Form{
				ResponseURL: f.ResponseURL,
				MaterialRef: MaterialRef{Title: f.Title, URL: f.FormURL, Thumbnail: f.ThumbnailURL},
			})
		}
	}
	return out
}
