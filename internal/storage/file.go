package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"classbot/pkg/logx"
)

const (
	compactEvery   = 1000
	fileRecentKeep = 200
)

// fileStore keeps everything next to cfg.Path:
//   - <base>.deliveries.jsonl     append-only delivery log
//   - <base>.dedup.snapshot.json  compacted dedup map
//   - <base>.dedup.journal.jsonl  dedup writes since the last compaction
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	deliveries   *os.File
	journal      *os.File
	snapshotPath string
	dedup        map[string]int64 // unix milli
	writes       int
	recent       []DeliveryRecord // oldest first, at most fileRecentKeep
}

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for the file driver")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	prefix := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	deliveriesPath := prefix + ".deliveries.jsonl"
	recent, err := tailDeliveries(deliveriesPath, fileRecentKeep)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("delivery log unreadable; recent history starts empty", logx.Err(err))
	}
	df, err := os.OpenFile(deliveriesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	dedup := map[string]int64{}
	snapPath := prefix + ".dedup.snapshot.json"
	journalPath := prefix + ".dedup.journal.jsonl"
	if err := loadSnapshot(snapPath, dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup snapshot unreadable, starting empty", logx.Err(err))
	}
	if err := replayJournal(journalPath, dedup); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("dedup journal replay failed", logx.Err(err))
	}
	pruneExpired(dedup, time.Now())

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = df.Close()
		return nil, err
	}
	return &fileStore{
		log:          log,
		deliveries:   df,
		journal:      jf,
		snapshotPath: snapPath,
		dedup:        dedup,
		recent:       recent,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.deliveries != nil {
		errs = append(errs, s.deliveries.Close())
		s.deliveries = nil
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendDelivery(_ context.Context, r DeliveryRecord) error {
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries == nil {
		return ErrDisabled
	}
	if err := json.NewEncoder(s.deliveries).Encode(r); err != nil {
		return err
	}
	s.recent = keepTail(append(s.recent, r), fileRecentKeep)
	return nil
}

func (s *fileStore) RecentDeliveries(_ context.Context, limit int) ([]DeliveryRecord, error) {
	limit = clampLimit(limit)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.recent))
	out := make([]DeliveryRecord, 0, n)
	for i := len(s.recent) - 1; i >= len(s.recent)-n; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

// tailDeliveries reads the last keep records of a JSON Lines delivery log.
func tailDeliveries(path string, keep int) ([]DeliveryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []DeliveryRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r DeliveryRecord
		if json.Unmarshal(sc.Bytes(), &r) != nil {
			continue
		}
		out = keepTail(append(out, r), keep)
	}
	return out, sc.Err()
}

func keepTail(rs []DeliveryRecord, keep int) []DeliveryRecord {
	if len(rs) <= keep {
		return rs
	}
	// Copy down so the backing array does not grow without bound.
	n := copy(rs, rs[len(rs)-keep:])
	return rs[:n]
}

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrDisabled
	}
	s.dedup[key] = ms
	if err := json.NewEncoder(s.journal).Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// compactLocked writes the live map to the snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	pruneExpired(s.dedup, time.Now())
	b, err := json.Marshal(s.dedup)
	if err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]int64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var m map[string]int64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r dedupRecord
		// A torn trailing line after a crash is skipped.
		if json.Unmarshal(sc.Bytes(), &r) != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func pruneExpired(m map[string]int64, now time.Time) {
	cut := now.UnixMilli()
	for k, v := range m {
		if v < cut {
			delete(m, k)
		}
	}
}
