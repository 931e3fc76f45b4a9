package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExpirer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExpirer) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 1, nil
}

func (f *fakeExpirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSchedulerRunsExpiryOnStart(t *testing.T) {
	expirer := &fakeExpirer{}
	s := NewScheduler(expirer, time.Second, zap.NewNop())

	require.NoError(t, s.Start(context.Background(), "@every 1h"))
	defer s.Stop()

	assert.Eventually(t, func() bool { return expirer.count() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&fakeExpirer{}, time.Second, zap.NewNop())
	assert.Error(t, s.Start(context.Background(), "not a cron spec"))
}
