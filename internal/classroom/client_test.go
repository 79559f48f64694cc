package classroom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL})
}

func TestListCourses(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/courses", r.URL.Path)
		require.Equal(t, "20", r.URL.Query().Get("pageSize"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"courses":[{"id":"c1","name":"Math","section":"A","enrollmentCode":"xyz","courseGroupEmail":"m@x"}]}`))
	})
	courses, err := c.ListCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, Course{ID: "c1", Name: "Math", Section: "A", EnrollmentCode: "xyz", CourseGroupEmail: "m@x"}, courses[0])
}

func TestListCoursesEmpty(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.ListCourses(context.Background())
	require.ErrorIs(t, err, ErrNoCourses)
}

func TestAPIErrorEnvelope(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`))
	})
	_, err := c.ListCourseWork(context.Background(), "c1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.HTTPStatus)
	require.Equal(t, "PERMISSION_DENIED", apiErr.Status)
	require.Equal(t, "denied", apiErr.Message)
}

func TestListCourseWorkDecodesDueAndMaterials(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/courses/c1/courseWork", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"courseWork":[{
			"id":"w1","courseId":"c1","title":"HW1","creatorUserId":"t1",
			"dueDate":{"year":2024,"month":5,"day":2},
			"dueTime":{"hours":23},
			"materials":[
				{"driveFile":{"driveFile":{"id":"d","title":"Doc","alternateLink":"https://d"},"shareMode":"VIEW"}},
				{"link":{"url":"https://l","title":"Site"}},
				{"youtubeVideo":{"id":"y","title":"Vid","alternateLink":"https://y"}},
				{"form":{"formUrl":"https://f","title":"Quiz"}}
			]}]}`))
	})
	items, err := c.ListCourseWork(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	w := items[0]
	require.NotNil(t, w.DueDate)
	require.Equal(t, 2024, *w.DueDate.Year)
	require.NotNil(t, w.DueTime)
	require.Equal(t, 23, *w.DueTime.Hours)
	require.Nil(t, w.DueTime.Minutes)

	require.Len(t, w.Materials, 4)
	kinds := []MaterialKind{MaterialDriveFile, MaterialLink, MaterialVideo, MaterialForm}
	for i, m := range w.Materials {
		require.Equal(t, kinds[i], m.Kind())
	}
	require.Equal(t, MaterialRef{Title: "Site", URL: "https://l"}, w.Materials[1].Ref())
}

func TestAbsentListIsNil(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/courses/c1/announcements" {
			_, _ = w.Write([]byte(`{"announcements":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	work, err := c.ListCourseWork(context.Background(), "c1")
	require.NoError(t, err)
	require.Nil(t, work)

	anns, err := c.ListAnnouncements(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, anns)
	require.Empty(t, anns)
}
