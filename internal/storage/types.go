package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by a store that has been closed.
var ErrDisabled = errors.New("storage: store closed")

const DefaultDeliveryHistory = 10000

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration

	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	// DeliveryHistory caps retained delivery records (sqlite, redis).
	DeliveryHistory int
}

// DeliveryRecord is the outcome of delivering one entity to one group.
type DeliveryRecord struct {
	At       time.Time `json:"at"`
	PassID   string    `json:"pass_id"`
	Platform string    `json:"platform"`
	Group    string    `json:"group"`
	Course   string    `json:"course"`
	Kind     string    `json:"kind"`
	EntityID string    `json:"entity_id,omitempty"`
	OK       bool      `json:"ok"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

// DefaultRecentLimit caps RecentDeliveries when the caller passes no limit.
const DefaultRecentLimit = 50

// Store persists the notifier's delivery log and its dedup windows.
type Store interface {
	AppendDelivery(ctx context.Context, r DeliveryRecord) error
	// RecentDeliveries returns up to limit records, newest first.
	RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error)
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}
