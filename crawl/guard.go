package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newscrawl/logger"
	"github.com/redis/go-redis/v9"
)

// ErrCycleInProgress is returned when a cycle is requested while another
// one holds the guard.
var ErrCycleInProgress = errors.New("crawl cycle already in progress")

// Guard serializes crawl cycles. Acquire returns a release function or
// ErrCycleInProgress.
type Guard interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalGuard rejects overlapping cycles within one process.
type LocalGuard struct {
	mu sync.Mutex
}

// NewLocalGuard creates an in-process guard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

// Acquire takes the guard without blocking.
func (g *LocalGuard) Acquire(ctx context.Context) (func(), error) {
	if !g.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	return g.mu.Unlock, nil
}

// DefaultLeaseTTL bounds how long a crashed holder can block other
// processes.
const DefaultLeaseTTL = 30 * time.Minute

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard rejects overlapping cycles across processes with a Redis lease.
type RedisGuard struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	log    logger.Logger
}

// NewRedisGuard creates a guard holding key for at most ttl.
func NewRedisGuard(client redis.UniversalClient, key string, ttl time.Duration, log logger.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisGuard{client: client, key: key, ttl: ttl, log: log}
}

// Acquire sets the lease with SET NX PX.
func (g *RedisGuard) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire crawl lease: %w", err)
	}
	if !ok {
		return nil, ErrCycleInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.client, []string{g.key}, token).Err(); err != nil {
			g.log.Warn("Failed to release crawl lease", logger.String("key", g.key), logger.Err(err))
		}
	}, nil
}
