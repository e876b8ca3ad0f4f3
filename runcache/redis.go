package runcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a shared Redis keyspace, letting the
// process scope of the Run Cache be observed by OS-process workers that do
// not share memory with the parent (spec §5 "subprocess fan-out": the
// child attaches to the same Redis keyspace instead of receiving a
// serialized cache blob).
//
// Values are JSON-encoded; callers storing non-JSON-serializable values
// (e.g. live objects meant only for same-process recursion guards) should
// keep those in the default in-memory Store and only route
// cross-process-visible state through RedisStore.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore constructs a RedisStore. keyPrefix namespaces all keys
// (typically the run id or "process"); ttl bounds how long an entry
// survives if never explicitly cleared (0 disables expiry).
func NewRedisStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisStore) fullKey(key string) string {
	return s.keyPrefix + ":" + key
}

func (s *RedisStore) Add(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.client.Set(context.Background(), s.fullKey(key), raw, s.ttl)
}

func (s *RedisStore) Get(key string) (any, bool) {
	raw, err := s.client.Get(context.Background(), s.fullKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (s *RedisStore) Pop(key string) (any, bool) {
	v, ok := s.Get(key)
	if ok {
		s.client.Del(context.Background(), s.fullKey(key))
	}
	return v, ok
}

func (s *RedisStore) Exists(key string) bool {
	n, err := s.client.Exists(context.Background(), s.fullKey(key)).Result()
	return err == nil && n > 0
}

func (s *RedisStore) Clear() {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, s.keyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		s.client.Del(ctx, keys...)
	}
}

func (s *RedisStore) Snapshot() map[string]any {
	ctx := context.Background()
	out := make(map[string]any)
	iter := s.client.Scan(ctx, 0, s.keyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		key := full[len(s.keyPrefix)+1:]
		if v, ok := s.Get(key); ok {
			out[key] = v
		}
	}
	return out
}
