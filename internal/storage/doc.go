// Package storage persists the delivery log and notifier dedup state.
//
// Drivers:
//   - "file": JSON Lines delivery log plus a dedup snapshot and journal
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
//   - "redis": shared dedup keys with TTL and a capped delivery list
//
// An empty driver (or "none") disables storage; Open then returns (nil, nil).
package storage
