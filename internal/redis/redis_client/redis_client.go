package redis_client

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	pingTimeout = 5 * time.Second
	maxPoolSize = 128
)

// Options addresses the Redis instance that backs the device name cache.
type Options struct {
	Host     string
	Port     uint16
	Password string
	DB       int
}

func (o Options) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
}

// poolSize scales with the CPU count, capped at maxPoolSize.
func poolSize(cpus int) int {
	return min(max(cpus, 1)*4, maxPoolSize)
}

// NewRedisClient dials Redis and confirms it answers PING before returning.
// The client is closed again when the ping fails.
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     opts.addr(),
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: poolSize(runtime.NumCPU()),
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		zap.L().Error("redis_connect", zap.String("addr", opts.addr()), zap.Int("db", opts.DB), zap.Error(err))
		return nil, fmt.Errorf("redis %s: %w", opts.addr(), err)
	}
	zap.L().Debug("redis_connected", zap.String("addr", opts.addr()), zap.Int("db", opts.DB))
	return rc, nil
}
