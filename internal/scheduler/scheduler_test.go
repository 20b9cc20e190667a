package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/contracts"
	"github.com/kylejryan/insurance-policy-portal/internal/outbox"
)

type countingFixer struct{ runs atomic.Int32 }

func (f *countingFixer) FixStatuses(context.Context) (contracts.FixReport, error) {
	f.runs.Add(1)
	return contracts.FixReport{Expired: 1}, nil
}

type countingDrainer struct {
	calls atomic.Int32
	limit atomic.Int32
}

func (d *countingDrainer) Drain(_ context.Context, limit int) (outbox.Report, error) {
	d.calls.Add(1)
	d.limit.Store(int32(limit))
	return outbox.Report{Delivered: 1}, nil
}

func redisLock(t *testing.T) (*miniredis.Miniredis, *RedisLock) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisLock(rdb)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(Config{FixSpec: "every day"}, &countingFixer{}, &countingDrainer{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisLock(t *testing.T) {
	mr, lock := redisLock(t)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, FixLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(FixLockKey))
	assert.Equal(t, time.Minute, mr.TTL(FixLockKey))

	_, ok, err = lock.Acquire(ctx, FixLockKey, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held by the first caller")

	release()
	assert.False(t, mr.Exists(FixLockKey))

	_, ok, err = lock.Acquire(ctx, FixLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	mr, lock := redisLock(t)
	release, ok, err := lock.Acquire(context.Background(), FixLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Our lock expired and another instance took it.
	require.NoError(t, mr.Set(FixLockKey, "someone-else"))
	release()
	v, err := mr.Get(FixLockKey)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRunFixHonoursLock(t *testing.T) {
	mr, lock := redisLock(t)
	fixer := &countingFixer{}
	s, err := New(Config{}, fixer, &countingDrainer{}, lock, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, s.RunFix(context.Background()))
	assert.False(t, mr.Exists(FixLockKey), "released after the run")

	require.NoError(t, mr.Set(FixLockKey, "other-instance"))
	assert.False(t, s.RunFix(context.Background()))
	assert.Equal(t, int32(1), fixer.runs.Load())
}

func TestStartRunsFixAndDrains(t *testing.T) {
	fixer := &countingFixer{}
	drainer := &countingDrainer{}
	s, err := New(Config{OutboxInterval: 10 * time.Millisecond, OutboxBatch: 7}, fixer, drainer, nil, zap.NewNop())
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return fixer.runs.Load() == 1 && drainer.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(7), drainer.limit.Load())
	calls := drainer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, drainer.calls.Load(), "no drain after Stop")
}
