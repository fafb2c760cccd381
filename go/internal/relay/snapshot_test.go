package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// memorySnapshotStore is an in-process SnapshotStore for registry tests.
type memorySnapshotStore struct {
	mu   sync.RWMutex
	data []byte
}

func (s *memorySnapshotStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *memorySnapshotStore) Load(_ context.Context) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, false, nil
	}
	return append([]byte(nil), s.data...), true, nil
}

func TestNewRedisSnapshotStoreFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisSnapshotStore(ctx, &redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}, "fakemouse:latest", time.Minute)
	if err == nil {
		t.Fatalf("expected an error for an unreachable redis")
	}
}
