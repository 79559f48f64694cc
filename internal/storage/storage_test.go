package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"classbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: expected (nil, nil), got (%v, %v)", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing addr")
	}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := st.GetDedup(ctx, "missing"); err != nil || ok {
		t.Fatalf("GetDedup(missing) = ok=%v err=%v", ok, err)
	}
	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	if err := st.PutDedup(ctx, "k1", until); err != nil {
		t.Fatalf("PutDedup: %v", err)
	}
	got, ok, err := st.GetDedup(ctx, "k1")
	if err != nil || !ok || !got.Equal(until) {
		t.Fatalf("GetDedup = %v ok=%v err=%v, want %v", got, ok, err, until)
	}
	rec := DeliveryRecord{PassID: "p", Platform: "discord", Group: "School", Course: "Math", Kind: "new_course_work", EntityID: "1", OK: true, Attempts: 1}
	if err := st.AppendDelivery(ctx, rec); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
	rec2 := rec
	rec2.EntityID, rec2.OK, rec2.Error, rec2.Attempts = "2", false, "no channel", 3
	if err := st.AppendDelivery(ctx, rec2); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
	recent, err := st.RecentDeliveries(ctx, 1)
	if err != nil {
		t.Fatalf("RecentDeliveries: %v", err)
	}
	if len(recent) != 1 || recent[0].EntityID != "2" || recent[0].OK || recent[0].Error != "no channel" {
		t.Fatalf("RecentDeliveries(1) = %+v, want newest failed record", recent)
	}
	all, _ := st.RecentDeliveries(ctx, 0)
	if len(all) != 2 || all[1].EntityID != "1" || !all[1].OK {
		t.Fatalf("RecentDeliveries(0) = %+v", all)
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "classbot.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseStore(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Dedup state survives a reopen through the journal.
	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if _, ok, _ := st2.GetDedup(context.Background(), "k1"); !ok {
		t.Fatal("dedup entry lost across reopen")
	}
	if recent, _ := st2.RecentDeliveries(context.Background(), 10); len(recent) != 2 || recent[0].EntityID != "2" {
		t.Fatalf("recent deliveries after reopen = %+v", recent)
	}

	f, err := os.Open(filepath.Join(dir, "state", "classbot.deliveries.jsonl"))
	if err != nil {
		t.Fatalf("open delivery log: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("delivery log is empty")
	}
	var rec DeliveryRecord
	if err := json.Unmarshal(sc.Bytes(), &rec); err != nil || rec.Course != "Math" || rec.At.IsZero() {
		t.Fatalf("bad delivery record %+v err=%v", rec, err)
	}
}

func TestFileStoreDropsExpiredOnOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "classbot.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.PutDedup(context.Background(), "old", time.Now().Add(-time.Minute))
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if _, ok, _ := st.GetDedup(context.Background(), "old"); ok {
		t.Fatal("expired entry must be pruned on open")
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "classbot.sqlite")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)

	later := time.Now().Add(2 * time.Hour).Truncate(time.Millisecond)
	if err := st.PutDedup(context.Background(), "k1", later); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, _ := st.GetDedup(context.Background(), "k1")
	if !got.Equal(later) {
		t.Fatalf("upsert not applied: %v", got)
	}
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "classbot.sqlite")
	for i := 0; i < 2; i++ {
		st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		var version int
		if err := st.(*sqliteStore).db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
			t.Fatalf("user_version: %v", err)
		}
		if version != len(schema) {
			t.Fatalf("user_version = %d, want %d", version, len(schema))
		}
		_ = st.Close()
	}
}

func TestKeepTail(t *testing.T) {
	t.Parallel()
	var rs []DeliveryRecord
	for i := 0; i < 5; i++ {
		rs = keepTail(append(rs, DeliveryRecord{Attempts: i}), 3)
	}
	if len(rs) != 3 || rs[0].Attempts != 2 || rs[2].Attempts != 4 {
		t.Fatalf("keepTail = %+v", rs)
	}
}

func TestRedisKeys(t *testing.T) {
	t.Parallel()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	st := newRedisStore(client, Config{}, logx.Nop())
	if st.dedupKey("abc") != "classbot:dedup:abc" || st.deliveriesKey() != "classbot:deliveries" {
		t.Fatalf("unexpected keys %q %q", st.dedupKey("abc"), st.deliveriesKey())
	}
	// Already-expired windows are not written.
	if err := st.PutDedup(context.Background(), "k", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("PutDedup(expired) = %v", err)
	}
}
