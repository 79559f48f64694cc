package app

import (
	"context"
	"runtime"
	"time"

	"classbot/internal/storage"

	rtsup "classbot/internal/runtime/supervisor"
)

// Health is the /healthz body.
type Health struct {
	Time        time.Time                           `json:"time"`
	AuthReady   bool                                `json:"auth_ready"`
	Poll        string                              `json:"poll"`
	Reminder    string                              `json:"reminder"`
	Courses     int                                 `json:"courses"`
	Goroutines  int                                 `json:"goroutines"`
	EventsDrop  uint64                              `json:"events_dropped"`
	Supervisors map[string]rtsup.SupervisorSnapshot `json:"supervisors"`
}

func (a *App) Health() any {
	h := Health{
		Time:        time.Now().UTC(),
		AuthReady:   a.auth.IsReady(),
		Poll:        a.poll.State().String(),
		Reminder:    a.remind.State().String(),
		Courses:     a.snaps.Load().Len(),
		Goroutines:  runtime.NumGoroutine(),
		EventsDrop:  a.bus.Dropped(),
		Supervisors: map[string]rtsup.SupervisorSnapshot{},
	}
	for name, sup := range map[string]*rtsup.Supervisor{
		"app":      a.sup,
		"loops":    a.loops,
		"notifier": a.notif.Supervisor(),
		"ops":      a.ops.Supervisor(),
	} {
		if sup != nil {
			h.Supervisors[name] = sup.Snapshot()
		}
	}
	return h
}

// recentDeliveries backs /deliveries. Without storage there is no history.
func (a *App) recentDeliveries(ctx context.Context, limit int) (any, error) {
	if a.store == nil {
		return []storage.DeliveryRecord{}, nil
	}
	recs, err := a.store.RecentDeliveries(ctx, limit)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
