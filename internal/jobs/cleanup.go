package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PendingSweeper deletes pending companions whose login window has passed.
type PendingSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// BucketSweeper drops idle in-memory rate limit buckets.
type BucketSweeper interface {
	Sweep(window time.Duration) int
}

type CleanupJob struct {
	pending    PendingSweeper
	buckets    []BucketSweeper
	bucketIdle time.Duration
	interval   time.Duration
	done       chan struct{}
}

func NewCleanupJob(pending PendingSweeper, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		pending:    pending,
		bucketIdle: interval,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

// WithBuckets registers in-memory limiters to sweep. Buckets idle for longer
// than idle are dropped.
func (j *CleanupJob) WithBuckets(idle time.Duration, buckets ...BucketSweeper) *CleanupJob {
	j.buckets = append(j.buckets, buckets...)
	if idle > 0 {
		j.bucketIdle = idle
	}
	return j
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if j.pending != nil {
		j.runCleanup(ctx, "pending companions", j.pending.DeleteExpired)
	}

	swept := 0
	for _, b := range j.buckets {
		swept += b.Sweep(j.bucketIdle)
	}
	if swept > 0 {
		log.Debug().Int("count", swept).Msg("swept idle rate limit buckets")
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
