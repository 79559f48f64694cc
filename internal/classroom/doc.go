// Package classroom models the upstream course content (courses, coursework,
// announcements, teachers, materials), defines when two items carry the same
// content, and talks to the Classroom REST API.
//
// # Equality
//
// Content equality deliberately ignores opaque ids, due dates and materials
// for work items (see SameWorkContent). Id-only churn therefore never looks
// like a change, and due-date edits surface only through reminders.
package classroom
