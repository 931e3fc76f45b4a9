package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type result struct {
	BookingIDs []int64 `json:"booking_ids"`
}

func TestLocalGuardRejectsConcurrentHolder(t *testing.T) {
	g := NewLocalGuard(time.Hour)
	ctx := context.Background()

	release, ok, err := g.Acquire(ctx, "booking:1:abc")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = g.Acquire(ctx, "booking:1:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = g.Acquire(ctx, "booking:2:abc")
	require.NoError(t, err)
	assert.True(t, ok)

	release()
	release()

	_, ok, err = g.Acquire(ctx, "booking:1:abc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalGuardStoresResults(t *testing.T) {
	g := NewLocalGuard(time.Hour)
	ctx := context.Background()

	var got result
	found, err := g.Load(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, g.Store(ctx, "k", result{BookingIDs: []int64{1, 2}}))

	found, err = g.Load(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []int64{1, 2}, got.BookingIDs)
}

func TestLocalGuardResultsExpire(t *testing.T) {
	g := NewLocalGuard(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, g.Store(ctx, "k", result{BookingIDs: []int64{1}}))

	now = now.Add(2 * time.Minute)
	var got result
	found, err := g.Load(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisGuardReportsUnavailableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	g := NewRedisGuard(client, time.Minute, time.Hour, zap.NewNop())

	_, ok, err := g.Acquire(context.Background(), "booking:1:abc")
	assert.Error(t, err)
	assert.False(t, ok)
}
