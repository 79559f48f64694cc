package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"classbot/pkg/logx"
)

const defaultKeyPrefix = "classbot:"

// redisStore shares dedup state between instances. Dedup keys expire on
// their own; deliveries go to a capped list, newest first.
type redisStore struct {
	client  *redis.Client
	log     logx.Logger
	prefix  string
	history int
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for the redis driver")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return newRedisStore(client, cfg, log), nil
}

func newRedisStore(client *redis.Client, cfg Config, log logx.Logger) *redisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &redisStore{client: client, log: log, prefix: prefix, history: cfg.DeliveryHistory}
}

func (s *redisStore) dedupKey(key string) string { return s.prefix + "dedup:" + key }
func (s *redisStore) deliveriesKey() string      { return s.prefix + "deliveries" }

func (s *redisStore) Close() error { return s.client.Close() }

func (s *redisStore) AppendDelivery(ctx context.Context, r DeliveryRecord) error {
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, s.deliveriesKey(), b)
		if s.history > 0 {
			p.LTrim(ctx, s.deliveriesKey(), 0, int64(s.history-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append delivery: %w", err)
	}
	return nil
}

func (s *redisStore) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	raw, err := s.client.LRange(ctx, s.deliveriesKey(), 0, int64(clampLimit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent deliveries: %w", err)
	}
	out := make([]DeliveryRecord, 0, len(raw))
	for _, item := range raw {
		var r DeliveryRecord
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			s.log.Debug("skipping malformed delivery record", logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *redisStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.dedupKey(key), until.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("redis put dedup: %w", err)
	}
	return nil
}

func (s *redisStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	ms, err := s.client.Get(ctx, s.dedupKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get dedup: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}
