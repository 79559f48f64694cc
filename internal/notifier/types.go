package notifier

import (
	"errors"
	"strings"
	"time"

	"classbot/internal/classroom"
	"classbot/internal/transport"
)

var ErrNoChannel = errors.New("notifier: group has no notification channel")

// Kind is the notification event kind.
type Kind string

const (
	KindNewWork             Kind = "new_course_work"
	KindUpdatedWork         Kind = "updated_course_work"
	KindNewAnnouncement     Kind = "new_announcement"
	KindUpdatedAnnouncement Kind = "updated_announcement"
	KindReminder            Kind = "reminder"
)

type Config struct {
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

// Notice is one entity's notification, before per-group mentions.
type Notice struct {
	Kind     Kind
	Course   classroom.Course
	EntityID string
	// Header is the expanded message template without mention tokens.
	Header   string
	Document transport.Document
	// DedupWindow suppresses repeats per group; zero disables dedup.
	DedupWindow time.Duration
}

func (n Notice) message(tokens []string) transport.Message {
	h := n.Header
	if len(tokens) > 0 {
		h = strings.TrimSpace(h + " " + strings.Join(tokens, " "))
	}
	return transport.Message{Header: h, Document: n.Document}
}

type Status int

const (
	StatusSent Status = iota + 1
	StatusFailed
	StatusDeduped
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	case StatusDeduped:
		return "deduped"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is the outcome for one group.
type Result struct {
	Group    transport.Group
	Status   Status
	Attempts int
	Err      error
}

// Report collects per-group results of one Fanout call.
type Report struct {
	PassID  string
	Results []Result
}

func (r Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}
