package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"classbot/pkg/logx"

	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeout = 5 * time.Second
	sqlitePruneEvery   = time.Minute
)

// schema holds one entry per version; PRAGMA user_version records how many
// have been applied.
var schema = []string{
	`CREATE TABLE deliveries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		at        INTEGER NOT NULL,
		pass_id   TEXT    NOT NULL,
		platform  TEXT    NOT NULL,
		grp       TEXT    NOT NULL,
		course    TEXT    NOT NULL,
		kind      TEXT    NOT NULL,
		entity_id TEXT    NOT NULL DEFAULT '',
		ok        INTEGER NOT NULL,
		attempts  INTEGER NOT NULL,
		err       TEXT    NOT NULL DEFAULT ''
	);
	CREATE TABLE dedup (
		key   TEXT    PRIMARY KEY,
		until INTEGER NOT NULL
	);`,
	`CREATE INDEX idx_deliveries_course ON deliveries(course, at);
	CREATE INDEX idx_dedup_until ON dedup(until);`,
}

type sqliteStore struct {
	db        *sql.DB
	log       logx.Logger
	history   int
	lastPrune atomic.Int64
}

func sqliteDSN(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(path, cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	st := &sqliteStore{db: db, log: log, history: cfg.DeliveryHistory}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	for v := version; v < len(schema); v++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, schema[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("schema v%d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.log.Debug("sqlite schema applied", logx.Int("version", v+1))
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, r DeliveryRecord) error {
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	ok := 0
	if r.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(at, pass_id, platform, grp, course, kind, entity_id, ok, attempts, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.At.UnixMilli(), r.PassID, r.Platform, r.Group, r.Course, r.Kind, r.EntityID, ok, r.Attempts, r.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite append delivery: %w", err)
	}
	s.maybePrune()
	return nil
}

func (s *sqliteStore) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, pass_id, platform, grp, course, kind, entity_id, ok, attempts, err
		 FROM deliveries ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite recent deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var (
			r  DeliveryRecord
			at int64
			ok int
		)
		if err := rows.Scan(&at, &r.PassID, &r.Platform, &r.Group, &r.Course, &r.Kind, &r.EntityID, &ok, &r.Attempts, &r.Error); err != nil {
			return nil, err
		}
		r.At = time.UnixMilli(at).UTC()
		r.OK = ok == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until = excluded.until`,
		key, until.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

// maybePrune trims expired dedup rows and old deliveries at most once per
// sqlitePruneEvery.
func (s *sqliteStore) maybePrune() {
	now := time.Now()
	last := s.lastPrune.Load()
	if now.Sub(time.UnixMilli(last)) < sqlitePruneEvery || !s.lastPrune.CompareAndSwap(last, now.UnixMilli()) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now.UnixMilli()); err != nil {
		s.log.Debug("sqlite prune dedup failed", logx.Err(err))
	}
	if s.history > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM deliveries WHERE id <= (SELECT MAX(id) FROM deliveries) - ?`, s.history); err != nil {
			s.log.Debug("sqlite prune deliveries failed", logx.Err(err))
		}
	}
}
