package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore mirrors the latest frame into a single Redis key so
// sibling relays and restarted instances can serve newcomers. Every save
// refreshes the key's ttl, so a frame expires once no relay has accepted
// anything for that long.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSnapshotStore connects to Redis and verifies the connection. A zero
// ttl never expires the key.
func NewRedisSnapshotStore(ctx context.Context, opts *redis.Options, key string, ttl time.Duration) (*RedisSnapshotStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisSnapshotStore{client: client, key: key, ttl: ttl}, nil
}

func (s *RedisSnapshotStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	return data, true, nil
}

// Ping checks that Redis answers.
func (s *RedisSnapshotStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the Redis client.
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
