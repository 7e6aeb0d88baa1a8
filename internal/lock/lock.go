// Package lock keeps two processes from running the same cycle at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrHeld is returned by Acquire when another holder owns the lock.
	ErrHeld = errors.New("lock is held by another process")
	// ErrLost is returned by a release whose lease expired or was taken over.
	ErrLost = errors.New("lock was lost before release")
)

const (
	keyPrefix  = "jobrater:lock:"
	DefaultTTL = 30 * time.Minute
)

// Release gives the lock back.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
}

// Noop always grants the lock. It is used when no Redis is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// Redis is a single-instance lock built on SET NX with a TTL. The TTL bounds
// how long a crashed holder blocks others.
type Redis struct {
	client client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

func NewRedis(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	return newRedis(rdb, ttl, logger), nil
}

func newRedis(c client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: c, ttl: ttl, logger: logger}
}

func (r *Redis) Acquire(ctx context.Context, name string) (Release, error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	r.logger.Debug("lock acquired", zap.String("lock", name), zap.Duration("ttl", r.ttl))

	return func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		if deleted == 0 {
			return ErrLost
		}
		r.logger.Debug("lock released", zap.String("lock", name))
		return nil
	}, nil
}
