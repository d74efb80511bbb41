// Package notify tells the outside world that a run finished.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Event types.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunCanceled  = "run.canceled"
)

// Event is the payload sent to every sink.
type Event struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, runID string, data any) *Event {
	return &Event{Type: typ, RunID: runID, Timestamp: time.Now().Unix(), Data: data}
}

// Sink is one notification destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Notifier fans events out to a fixed set of sinks plus any per-call extras.
// A nil *Notifier is valid and only publishes to extras.
type Notifier struct {
	sinks []Sink
}

// NewNotifier creates a Notifier. Nil sinks are skipped.
func NewNotifier(sinks ...Sink) *Notifier {
	n := &Notifier{}
	for _, s := range sinks {
		if s != nil {
			n.sinks = append(n.sinks, s)
		}
	}
	return n
}

// Publish sends event to every sink concurrently and waits for all of them.
// Failures are logged and joined into the returned error.
func (n *Notifier) Publish(ctx context.Context, event *Event, extra ...Sink) error {
	var sinks []Sink
	if n != nil {
		sinks = append(sinks, n.sinks...)
	}
	for _, s := range extra {
		if s != nil {
			sinks = append(sinks, s)
		}
	}
	if len(sinks) == 0 {
		return nil
	}

	errs := make([]error, len(sinks))
	var g errgroup.Group
	for i, s := range sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, event); err != nil {
				slog.Error("notification failed",
					"sink", s.Name(),
					"event", event.Type,
					"run_id", event.RunID,
					"error", err,
				)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// PublishAsync is Publish on a background goroutine with its own deadline.
func (n *Notifier) PublishAsync(event *Event, timeout time.Duration, extra ...Sink) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = n.Publish(ctx, event, extra...)
	}()
}

// Close closes every configured sink.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	var errs []error
	for _, s := range n.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
