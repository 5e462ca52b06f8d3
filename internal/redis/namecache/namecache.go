package namecache

import (
	"context"
	"errors"
	"time"

	"chatrelay/internal/services/chatstore"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "chat:user:"

// cachedStore fronts the device→name lookups of a chat store with Redis.
// Every other call goes straight to the wrapped store.
type cachedStore struct {
	chatstore.IChatStore
	rdc *redis.Client
	ttl time.Duration
}

func New(next chatstore.IChatStore, rdc *redis.Client, ttl time.Duration) chatstore.IChatStore {
	return &cachedStore{IChatStore: next, rdc: rdc, ttl: ttl}
}

func (c *cachedStore) GetUsername(ctx context.Context, device string) (string, bool, error) {
	name, err := c.rdc.Get(ctx, keyPrefix+device).Result()
	switch {
	case err == nil:
		return name, true, nil
	case !errors.Is(err, redis.Nil):
		zap.L().Warn("namecache.get", zap.String("device", device), zap.Error(err))
	}

	name, ok, err := c.IChatStore.GetUsername(ctx, device)
	if err != nil || !ok {
		return name, ok, err
	}
	c.put(ctx, device, name)
	return name, true, nil
}

// SetUsername writes Postgres first so the cache never holds a name the
// database rejected.
func (c *cachedStore) SetUsername(ctx context.Context, device, name string) error {
	if err := c.IChatStore.SetUsername(ctx, device, name); err != nil {
		return err
	}
	c.put(ctx, device, name)
	return nil
}

func (c *cachedStore) put(ctx context.Context, device, name string) {
	if err := c.rdc.Set(ctx, keyPrefix+device, name, c.ttl).Err(); err != nil {
		zap.L().Warn("namecache.set", zap.String("device", device), zap.Error(err))
	}
}
