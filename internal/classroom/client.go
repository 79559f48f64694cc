package classroom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL        = "https://classroom.googleapis.com/v1"
	DefaultPageSize       = 20
	DefaultRequestTimeout = 30 * time.Second
)

// ErrNoCourses is returned by ListCourses when the account sees no courses.
var ErrNoCourses = errors.New("classroom: no courses found")

// APIError is a decoded Google error envelope.
type APIError struct {
	HTTPStatus int
	Code       int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("classroom: http %d", e.HTTPStatus)
	}
	return fmt.Sprintf("classroom: http %d %s: %s", e.HTTPStatus, e.Status, e.Message)
}

type Options struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration
	// Transport carries credentials; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	UserAgent string
}

// Client is a thin read-only Classroom v1 client.
type Client struct {
	http     *resty.Client
	pageSize int
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.Transport != nil {
		rc.SetTransport(opts.Transport)
	}
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	return &Client{http: rc, pageSize: opts.PageSize}
}

// ListCourses requests a single page of courses. An empty page is ErrNoCourses.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	var out listCoursesResponse
	if err := c.get(ctx, "/courses", map[string]string{"pageSize": strconv.Itoa(c.pageSize)}, &out); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	if out.Courses == nil || len(*out.Courses) == 0 {
		return nil, ErrNoCourses
	}
	courses := make([]Course, 0, len(*out.Courses))
	for _, w := range *out.Courses {
		courses = append(courses, w.domain())
	}
	return courses, nil
}

// ListCourseWork returns the course's work items. A nil slice with a nil
// error means the response carried no list at all.
func (c *Client) ListCourseWork(ctx context.Context, courseID string) ([]WorkItem, error) {
	var out listCourseWorkResponse
	if err := c.get(ctx, "/courses/"+escape(courseID)+"/courseWork", nil, &out); err != nil {
		return nil, fmt.Errorf("list coursework %s: %w", courseID, err)
	}
	if out.CourseWork == nil {
		return nil, nil
	}
	items := make([]WorkItem, 0, len(*out.CourseWork))
	for _, w := range *out.CourseWork {
		items = append(items, w.domain())
	}
	return items, nil
}

// ListAnnouncements follows the same absent-list convention as ListCourseWork.
func (c *Client) ListAnnouncements(ctx context.Context, courseID string) ([]Announcement, error) {
	var out listAnnouncementsResponse
	if err := c.get(ctx, "/courses/"+escape(courseID)+"/announcements", nil, &out); err != nil {
		return nil, fmt.Errorf("list announcements %s: %w", courseID, err)
	}
	if out.Announcements == nil {
		return nil, nil
	}
	items := make([]Announcement, 0, len(*out.Announcements))
	for _, w := range *out.Announcements {
		items = append(items, w.domain())
	}
	return items, nil
}

func (c *Client) ListTeachers(ctx context.Context, courseID string) ([]Teacher, error) {
	var out listTeachersResponse
	if err := c.get(ctx, "/courses/"+escape(courseID)+"/teachers", nil, &out); err != nil {
		return nil, fmt.Errorf("list teachers %s: %w", courseID, err)
	}
	if out.Teachers == nil {
		return nil, nil
	}
	teachers := make([]Teacher, 0, len(*out.Teachers))
	for _, w := range *out.Teachers {
		teachers = append(teachers, w.domain())
	}
	return teachers, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, result any) error {
	var envelope errorEnvelope
	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&envelope)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{
			HTTPStatus: resp.StatusCode(),
			Code:       envelope.Error.Code,
			Status:     envelope.Error.Status,
			Message:    envelope.Error.Message,
		}
	}
	return nil
}

func escape(id string) string {
	return strings.NewReplacer("/", "%2F", "?", "%3F", "#", "%23").Replace(id)
}
