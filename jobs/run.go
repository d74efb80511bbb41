// Package jobs tracks asynchronous scrape runs.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/jobscrape/models"
)

// subscriberBuffer is how many status messages a slow subscriber may lag
// behind before messages are dropped for it.
const subscriberBuffer = 64

// Run is one asynchronous worker run. It is safe for concurrent use.
type Run struct {
	ID        string
	Platform  string
	CreatedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	status     models.RunStatus
	statuses   []models.StatusMessage
	result     *models.ScrapeResult
	err        *models.ScrapeError
	finishedAt time.Time
	subs       map[chan models.StatusMessage]struct{}
}

func newRun(id, platform string, cancel context.CancelFunc) *Run {
	return &Run{
		ID:        id,
		Platform:  platform,
		CreatedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    models.RunProcessing,
		subs:      make(map[chan models.StatusMessage]struct{}),
	}
}

// AddStatus records a status message and forwards it to subscribers.
func (r *Run) AddStatus(msg models.StatusMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Done() {
		return
	}
	r.statuses = append(r.statuses, msg)
	for ch := range r.subs {
		select {
		case ch <- msg:
		default:
			slog.Warn("run subscriber too slow, dropping status", "run_id", r.ID, "status", msg.Status)
		}
	}
}

// Finish moves the run to its terminal state. Later calls are ignored.
func (r *Run) Finish(result *models.ScrapeResult, err error) models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Done() {
		return r.status
	}

	switch {
	case err == nil:
		r.status = models.RunCompleted
		r.result = result
	default:
		r.err = models.AsScrapeError(err)
		r.status = models.RunFailed
		if r.err.Code == models.ErrCodeCanceled {
			r.status = models.RunCanceled
		}
	}
	r.finishedAt = time.Now()

	for ch := range r.subs {
		close(ch)
		delete(r.subs, ch)
	}
	close(r.done)
	r.cancel()
	return r.status
}

// Cancel asks the worker to stop. It reports false if the run already finished.
func (r *Run) Cancel() bool {
	r.mu.Lock()
	done := r.status.Done()
	r.mu.Unlock()
	if done {
		return false
	}
	r.cancel()
	return true
}

// Done is closed once the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Status is the current lifecycle state.
func (r *Run) Status() models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result returns the final result, or nil unless the run completed.
func (r *Run) Result() *models.ScrapeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Err returns the failure, or nil unless the run failed or was canceled.
func (r *Run) Err() *models.ScrapeError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Subscribe returns the statuses seen so far and a channel carrying the
// ones that follow. The channel is closed when the run finishes; call
// unsubscribe to stop early.
func (r *Run) Subscribe() (past []models.StatusMessage, updates <-chan models.StatusMessage, unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	past = append([]models.StatusMessage(nil), r.statuses...)
	ch := make(chan models.StatusMessage, subscriberBuffer)
	if r.status.Done() {
		close(ch)
		return past, ch, func() {}
	}

	r.subs[ch] = struct{}{}
	return past, ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
}

// Snapshot renders the run for the API.
func (r *Run) Snapshot() models.RunStatusResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp := models.RunStatusResponse{
		ID:        r.ID,
		Status:    r.status,
		Platform:  r.Platform,
		Statuses:  append([]models.StatusMessage{}, r.statuses...),
		Result:    r.result,
		CreatedAt: r.CreatedAt.Unix(),
	}
	if r.err != nil {
		e := r.err.ToResponse()
		resp.Error = &e
	}
	if !r.finishedAt.IsZero() {
		resp.FinishedAt = r.finishedAt.Unix()
	}
	return resp
}
