package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/use-agent/jobscrape/models"
)

// Store holds runs in memory. Runs in flight never expire; finished runs
// are kept for the configured TTL.
type Store struct {
	ttl        time.Duration
	maxEntries int

	mu    sync.Mutex // serialises capacity checks with inserts
	cache *gocache.Cache
}

// NewStore creates a Store. maxEntries <= 0 disables the cap.
func NewStore(ttl time.Duration, maxEntries int) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	cleanup := ttl / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	c := gocache.New(ttl, cleanup)
	c.OnEvicted(func(id string, _ interface{}) {
		slog.Debug("run evicted", "run_id", id)
	})
	return &Store{ttl: ttl, maxEntries: maxEntries, cache: c}
}

// Create registers a new processing run. cancel stops the run's worker.
func (s *Store) Create(platform string, cancel context.CancelFunc) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxEntries > 0 {
		// ItemCount includes expired items the janitor has not swept yet.
		s.cache.DeleteExpired()
		if s.cache.ItemCount() >= s.maxEntries && !s.evictOldestFinished() {
			return nil, models.NewScrapeError(models.ErrCodeWorkerBusy,
				fmt.Sprintf("run store is full (%d runs), try again later", s.maxEntries), nil)
		}
	}

	run := newRun("run-"+uuid.NewString(), platform, cancel)
	s.cache.Set(run.ID, run, gocache.NoExpiration)
	return run, nil
}

// Get looks up a run by ID.
func (s *Store) Get(id string) (*Run, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Run), true
}

// Expire starts the TTL of a finished run.
func (s *Store) Expire(run *Run) {
	s.cache.Set(run.ID, run, s.ttl)
}

// Delete forgets a run.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

// Len is the number of unexpired runs held.
func (s *Store) Len() int {
	return len(s.cache.Items())
}

// Active returns every run still processing.
func (s *Store) Active() []*Run {
	var active []*Run
	for _, item := range s.cache.Items() {
		if run := item.Object.(*Run); !run.Status().Done() {
			active = append(active, run)
		}
	}
	return active
}

// evictOldestFinished drops the finished run created first. Caller holds s.mu.
func (s *Store) evictOldestFinished() bool {
	var oldest *Run
	for _, item := range s.cache.Items() {
		run := item.Object.(*Run)
		if !run.Status().Done() {
			continue
		}
		if oldest == nil || run.CreatedAt.Before(oldest.CreatedAt) {
			oldest = run
		}
	}
	if oldest == nil {
		return false
	}
	s.cache.Delete(oldest.ID)
	return true
}
