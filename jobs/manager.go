package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/jobscrape/models"
	"github.com/use-agent/jobscrape/notify"
	"github.com/use-agent/jobscrape/scraper"
)

// notifyTimeout bounds how long a finished run's notifications may take.
const notifyTimeout = 2 * time.Minute

// Scraper is the part of *scraper.Scraper a Manager needs.
type Scraper interface {
	Resolve(platform string) (name, script string)
	DoScrape(ctx context.Context, req *models.ScrapeRequest, observe scraper.Observer) (*models.ScrapeResult, error)
}

// Manager starts runs in the background and announces their outcome.
type Manager struct {
	store    *Store
	scraper  Scraper
	notifier *notify.Notifier
}

// NewManager creates a Manager. notifier may be nil.
func NewManager(store *Store, sc Scraper, notifier *notify.Notifier) *Manager {
	return &Manager{store: store, scraper: sc, notifier: notifier}
}

// Store exposes the run store backing m.
func (m *Manager) Store() *Store {
	return m.store
}

// Start validates req and launches its worker in the background.
func (m *Manager) Start(req models.RunRequest) (*Run, error) {
	req.Defaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	platform, _ := m.scraper.Resolve(req.Platform)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := m.store.Create(platform, cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	var extra []notify.Sink
	if req.WebhookURL != "" {
		extra = append(extra, notify.NewWebhook(req.WebhookURL, req.WebhookSecret))
	}

	slog.Info("run started", "run_id", run.ID, "platform", platform)
	go m.execute(ctx, run, req.ScrapeRequest, extra)
	return run, nil
}

func (m *Manager) execute(ctx context.Context, run *Run, req models.ScrapeRequest, extra []notify.Sink) {
	result, err := m.scraper.DoScrape(ctx, &req, run.AddStatus)
	status := run.Finish(result, err)
	m.store.Expire(run)

	if err != nil {
		slog.Warn("run finished", "run_id", run.ID, "status", status, "error", err)
	} else {
		slog.Info("run finished", "run_id", run.ID, "status", status, "records", result.Len())
	}

	event := notify.NewEvent(eventType(status), run.ID, run.Snapshot())
	m.notifier.PublishAsync(event, notifyTimeout, extra...)
}

// Cancel stops a processing run. It returns NOT_FOUND for unknown IDs and
// CONFLICT when the run already finished.
func (m *Manager) Cancel(id string) (*Run, error) {
	run, ok := m.store.Get(id)
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeNotFound, "run not found", nil)
	}
	if !run.Cancel() {
		return run, models.NewScrapeError(models.ErrCodeConflict, "run already finished", nil)
	}
	slog.Info("run cancel requested", "run_id", id)
	return run, nil
}

// Shutdown cancels every run in flight and waits for them to finish or
// for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	active := m.store.Active()
	for _, run := range active {
		run.Cancel()
	}
	for _, run := range active {
		select {
		case <-run.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func eventType(status models.RunStatus) string {
	switch status {
	case models.RunCompleted:
		return notify.EventRunCompleted
	case models.RunCanceled:
		return notify.EventRunCanceled
	default:
		return notify.EventRunFailed
	}
}
