package eventbus

import "time"

// Event types published by classbot components.
const (
	TypeLoopState       = "loop.state"
	TypeCycleDone       = "poll.cycle"
	TypeChangeDetected  = "poll.change"
	TypeReminderScan    = "reminder.scan"
	TypeDeliverySent    = "notifier.sent"
	TypeDeliveryFailed  = "notifier.failed"
	TypeDeliveryDeduped = "notifier.deduped"
	TypeDeliverySkipped = "notifier.skipped"
	TypeAuthReady       = "auth.ready"
)

// LoopState reports a loop state transition ("poll" or "reminder").
type LoopState struct {
	Loop  string `json:"loop"`
	State string `json:"state"`
}

// CycleDone summarizes one poll cycle.
type CycleDone struct {
	Result  string        `json:"result"` // ok | fetch_error | groups_error
	Courses int           `json:"courses"`
	Records int           `json:"records"`
	Took    time.Duration `json:"took"`
}

// ChangeDetected is published per classified entity change.
type ChangeDetected struct {
	Course string `json:"course"`
	Kind   string `json:"kind"` // notification kind, e.g. new_course_work
	ID     string `json:"id"`
}

// ReminderScan summarizes one reminder scan.
type ReminderScan struct {
	DueSoon int           `json:"due_soon"`
	Took    time.Duration `json:"took"`
}

// Delivery describes a per-group delivery outcome.
type Delivery struct {
	Platform string `json:"platform"`
	Group    string `json:"group"`
	Course   string `json:"course"`
	Kind     string `json:"kind"`
	Key      string `json:"key,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}
