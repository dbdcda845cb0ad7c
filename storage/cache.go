package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"agenda-tracker/domain"
)

const (
	revisionsCacheKey = "agenda:revisions"
	usersCacheKey     = "agenda:users"
)

// Cache wraps a Backend with Redis-backed caching of the revision and user
// snapshots. Any write evicts both snapshots so the next read sees it.
type Cache struct {
	base  Backend
	redis *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// Base returns the wrapped backend.
func (c *Cache) Base() Backend {
	return c.base
}

func (c *Cache) FetchRevisions(ctx context.Context) ([]domain.Revision, error) {
	var revs []domain.Revision
	if c.load(ctx, revisionsCacheKey, &revs) {
		return revs, nil
	}
	// shared fetches outlive the caller that started them
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(revisionsCacheKey, func() (any, error) {
		revs, err := c.base.FetchRevisions(shared)
		if err != nil {
			return nil, err
		}
		c.store(shared, revisionsCacheKey, revs)
		return revs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Revision), nil
}

func (c *Cache) FetchUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if c.load(ctx, usersCacheKey, &users) {
		return users, nil
	}
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(usersCacheKey, func() (any, error) {
		users, err := c.base.FetchUsers(shared)
		if err != nil {
			return nil, err
		}
		c.store(shared, usersCacheKey, users)
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.User), nil
}

func (c *Cache) ForwardTask(ctx context.Context, req domain.ForwardRequest) (string, error) {
	id, err := c.base.ForwardTask(ctx, req)
	if err != nil {
		return "", err
	}
	c.Evict(ctx)
	return id, nil
}

func (c *Cache) RegisterUser(ctx context.Context, userID, displayName string) (domain.User, error) {
	u, err := c.base.RegisterUser(ctx, userID, displayName)
	if err != nil {
		return domain.User{}, err
	}
	c.Evict(ctx)
	return u, nil
}

func (c *Cache) SetPassword(ctx context.Context, userID, passwordHash string) error {
	if err := c.base.SetPassword(ctx, userID, passwordHash); err != nil {
		return err
	}
	c.Evict(ctx)
	return nil
}

func (c *Cache) SetRole(ctx context.Context, userID string, role domain.Role) error {
	rs, ok := c.base.(RoleSetter)
	if !ok {
		return ErrNotSupported
	}
	if err := rs.SetRole(ctx, userID, role); err != nil {
		return err
	}
	c.Evict(ctx)
	return nil
}

func (c *Cache) Import(ctx context.Context, revs []domain.Revision, users []domain.User) error {
	im, ok := c.base.(Importer)
	if !ok {
		return ErrNotSupported
	}
	if err := im.Import(ctx, revs, users); err != nil {
		return err
	}
	c.Evict(ctx)
	return nil
}

// PasswordHash always reads through; hashes are never cached.
func (c *Cache) PasswordHash(ctx context.Context, userID string) (string, error) {
	cs, ok := c.base.(CredentialStore)
	if !ok {
		return "", ErrNotSupported
	}
	return cs.PasswordHash(ctx, userID)
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	if p, ok := c.base.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			log.WithError(err).WithField("key", key).Debug("cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

// Evict drops both cached snapshots.
func (c *Cache) Evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, revisionsCacheKey, usersCacheKey).Result()
}
