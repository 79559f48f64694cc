package storage

import (
	"fmt"
	"sort"
	"strings"

	"classbot/pkg/logx"
)

type opener func(cfg Config, log logx.Logger) (Store, error)

var drivers = map[string]opener{
	"file":    openFile,
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
	"redis":   openRedis,
}

// Drivers lists the accepted storage.driver values.
func Drivers() []string {
	out := make([]string, 0, len(drivers))
	for name := range drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open initializes the configured store. It returns (nil, nil) when storage
// is disabled ("" or "none").
func Open(cfg Config, log logx.Logger) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage driver %q (want one of %s)", cfg.Driver, strings.Join(Drivers(), ", "))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.DeliveryHistory <= 0 {
		cfg.DeliveryHistory = DefaultDeliveryHistory
	}
	return open(cfg, log.With(logx.String("driver", name)))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
