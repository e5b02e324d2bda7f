package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pevans/newscrawl/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: start miniredis and return a client for it
func createTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// TestLocalGuard verifies the guard is exclusive until released
func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx)
	require.NoError(t, err)

	_, err = g.Acquire(ctx)
	assert.ErrorIs(t, err, ErrCycleInProgress)

	release()

	release, err = g.Acquire(ctx)
	require.NoError(t, err)
	release()
}

// TestRedisGuard verifies the lease is exclusive across guards sharing a key
func TestRedisGuard(t *testing.T) {
	mr, client := createTestRedis(t)
	ctx := context.Background()

	first := NewRedisGuard(client, "newscrawl:cycle", time.Minute, logger.NewNop())
	second := NewRedisGuard(client, "newscrawl:cycle", time.Minute, logger.NewNop())

	release, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("newscrawl:cycle"))
	assert.Equal(t, time.Minute, mr.TTL("newscrawl:cycle"))

	_, err = second.Acquire(ctx)
	assert.ErrorIs(t, err, ErrCycleInProgress)

	release()
	assert.False(t, mr.Exists("newscrawl:cycle"))

	release2, err := second.Acquire(ctx)
	require.NoError(t, err)
	release2()
}

// TestRedisGuard_ExpiredLease verifies a stale holder cannot release a lease
// taken over by someone else
func TestRedisGuard_ExpiredLease(t *testing.T) {
	mr, client := createTestRedis(t)
	ctx := context.Background()

	g := NewRedisGuard(client, "lease", time.Second, logger.NewNop())

	staleRelease, err := g.Acquire(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release, err := g.Acquire(ctx)
	require.NoError(t, err)

	staleRelease()
	assert.True(t, mr.Exists("lease"), "stale release must not delete the new lease")

	release()
	assert.False(t, mr.Exists("lease"))
}

// TestRedisGuard_Unavailable verifies backend errors are not reported as
// contention
func TestRedisGuard_Unavailable(t *testing.T) {
	mr, client := createTestRedis(t)
	mr.Close()

	_, err := NewRedisGuard(client, "lease", 0, logger.NewNop()).Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCycleInProgress)
}
