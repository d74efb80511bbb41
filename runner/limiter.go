package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/use-agent/jobscrape/models"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when every worker slot is taken and the wait queue is full.
var ErrBusy = errors.New("all worker slots busy")

// Limiter bounds how many workers run at once. Callers beyond the slot
// count wait in a bounded queue; callers beyond the queue are rejected.
// It is safe for concurrent use.
type Limiter struct {
	sem      *semaphore.Weighted
	max      int
	maxQueue int
	active   atomic.Int32
	queued   atomic.Int32
}

// NewLimiter creates a Limiter with maxConcurrent slots and room for
// maxQueue waiters. maxQueue < 0 means an unbounded queue.
func NewLimiter(maxConcurrent, maxQueue int) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		max:      maxConcurrent,
		maxQueue: maxQueue,
	}
}

// Acquire takes a slot, waiting while ctx allows. The returned release
// func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if !l.sem.TryAcquire(1) {
		if l.maxQueue >= 0 && int(l.queued.Add(1)) > l.maxQueue {
			l.queued.Add(-1)
			return nil, models.NewScrapeError(models.ErrCodeWorkerBusy,
				fmt.Sprintf("all %d worker slots are busy, try again later", l.max), ErrBusy)
		}
		if l.maxQueue < 0 {
			l.queued.Add(1)
		}
		err := l.sem.Acquire(ctx, 1)
		l.queued.Add(-1)
		if err != nil {
			se := contextError(err, 0)
			se.Message = "gave up waiting for a free worker slot"
			return nil, se
		}
	}

	l.active.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			l.active.Add(-1)
			l.sem.Release(1)
		}
	}, nil
}

// Stats returns a snapshot of slot usage.
func (l *Limiter) Stats() models.WorkerStats {
	return models.WorkerStats{
		MaxWorkers:    l.max,
		ActiveWorkers: int(l.active.Load()),
		Queued:        int(l.queued.Load()),
	}
}
