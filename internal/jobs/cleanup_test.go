package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockPendingSweeper struct {
	calls atomic.Int32
	count int64
	err   error
}

func (m *mockPendingSweeper) DeleteExpired(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return m.count, m.err
}

type mockBucketSweeper struct {
	calls  atomic.Int32
	window atomic.Int64
}

func (m *mockBucketSweeper) Sweep(window time.Duration) int {
	m.calls.Add(1)
	m.window.Store(int64(window))
	return 1
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(nil, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
		assert.Equal(t, 5*time.Minute, job.bucketIdle)
	})

	t.Run("starts and stops without panic", func(t *testing.T) {
		job := NewCleanupJob(&mockPendingSweeper{}, 100*time.Millisecond)

		job.Start()
		time.Sleep(50 * time.Millisecond)
		job.Stop()
	})

	t.Run("runs cleanup on start", func(t *testing.T) {
		pending := &mockPendingSweeper{count: 2}
		buckets := &mockBucketSweeper{}

		job := NewCleanupJob(pending, time.Hour).WithBuckets(10*time.Minute, buckets)
		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return pending.calls.Load() == 1 && buckets.calls.Load() == 1
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, int64(10*time.Minute), buckets.window.Load())
	})

	t.Run("keeps running after a failed sweep", func(t *testing.T) {
		pending := &mockPendingSweeper{err: errors.New("db down")}

		job := NewCleanupJob(pending, 20*time.Millisecond)
		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return pending.calls.Load() >= 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("nil pending sweeper is skipped", func(t *testing.T) {
		buckets := &mockBucketSweeper{}
		job := NewCleanupJob(nil, time.Hour).WithBuckets(0, buckets)

		job.cleanup()

		assert.Equal(t, int32(1), buckets.calls.Load())
		assert.Equal(t, int64(time.Hour), buckets.window.Load())
	})
}
