package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const forwardLockPrefix = "agenda:forward"

// releaseScript deletes the lock only while it still carries the caller's
// token, so an expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisForwardLocker shares forward locks between every instance through
// Redis.
type RedisForwardLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisForwardLocker creates a locker whose locks expire after ttl.
func NewRedisForwardLocker(client *redis.Client, ttl time.Duration) *RedisForwardLocker {
	return &RedisForwardLocker{client: client, ttl: ttl}
}

func (r *RedisForwardLocker) key(key string) string {
	return forwardLockPrefix + ":" + key
}

func (r *RedisForwardLocker) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(key), token, r.ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (r *RedisForwardLocker) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, r.client, []string{r.key(key)}, token).Err()
}

// MemoryForwardLocker is the single-instance locker used without Redis.
type MemoryForwardLocker struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

func NewMemoryForwardLocker(ttl time.Duration) *MemoryForwardLocker {
	return &MemoryForwardLocker{ttl: ttl, now: time.Now, locks: make(map[string]memoryLock)}
}

func (m *MemoryForwardLocker) Acquire(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if l, ok := m.locks[key]; ok && (m.ttl <= 0 || now.Before(l.expiresAt)) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[key] = memoryLock{token: token, expiresAt: now.Add(m.ttl)}
	return token, true, nil
}

func (m *MemoryForwardLocker) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok && l.token == token {
		delete(m.locks, key)
	}
	return nil
}
