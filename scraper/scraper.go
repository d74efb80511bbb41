package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/use-agent/jobscrape/config"
	"github.com/use-agent/jobscrape/models"
	"github.com/use-agent/jobscrape/output"
	"github.com/use-agent/jobscrape/runner"
)

// Observer receives worker status messages as they are emitted.
// It must not block for long: it runs on the worker's output path.
type Observer func(models.StatusMessage)

// Scraper turns scrape requests into worker runs: it picks the platform
// script, waits for a worker slot, launches the worker and interprets its
// output. It is safe for concurrent use.
type Scraper struct {
	cfg      config.WorkerConfig
	launcher *runner.Launcher
	limiter  *runner.Limiter
}

// NewScraper builds a Scraper from the worker configuration.
func NewScraper(cfg config.WorkerConfig) *Scraper {
	launcher := runner.NewLauncher(cfg.Timeout, cfg.KillGrace)
	launcher.Env = cfg.Env

	slog.Info("worker pool configured",
		"executable", cfg.Executable,
		"scriptDir", cfg.ScriptDir,
		"maxConcurrent", cfg.MaxConcurrent,
		"maxQueue", cfg.MaxQueue,
		"timeout", cfg.Timeout,
	)

	return &Scraper{
		cfg:      cfg,
		launcher: launcher,
		limiter:  runner.NewLimiter(cfg.MaxConcurrent, cfg.MaxQueue),
	}
}

// Stats returns a snapshot of worker slot usage.
func (s *Scraper) Stats() models.WorkerStats {
	return s.limiter.Stats()
}

// Platforms lists the configured platform names, sorted.
func (s *Scraper) Platforms() []string {
	names := make([]string, 0, len(s.cfg.Platforms))
	for name := range s.cfg.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultPlatform is the platform used for empty or unknown names.
func (s *Scraper) DefaultPlatform() string {
	return s.cfg.DefaultPlatform
}

// Resolve maps a requested platform to the platform actually used and
// its script path. Unknown names fall back to the default platform.
func (s *Scraper) Resolve(platform string) (name, script string) {
	name = platform
	file, ok := s.cfg.Platforms[name]
	if !ok {
		name = s.cfg.DefaultPlatform
		file = s.cfg.Platforms[name]
	}
	if file == "" {
		return name, ""
	}
	if filepath.IsAbs(file) {
		return name, file
	}
	return name, filepath.Join(s.cfg.ScriptDir, file)
}

// Timeout is the worker timeout for a request asking for `seconds`.
func (s *Scraper) Timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return s.cfg.Timeout
	}
	d := time.Duration(seconds) * time.Second
	if s.cfg.MaxTimeout > 0 && d > s.cfg.MaxTimeout {
		d = s.cfg.MaxTimeout
	}
	return d
}

// DoScrape runs one worker for req and returns its final result.
//
// Exactly one worker is launched per call and nothing is retried. Status
// lines go to observe (may be nil) and never influence the result. Every
// error is a *models.ScrapeError.
func (s *Scraper) DoScrape(ctx context.Context, req *models.ScrapeRequest, observe Observer) (*models.ScrapeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	platform, script := s.Resolve(req.Platform)
	if script == "" {
		return nil, models.NewScrapeError(models.ErrCodeLaunchFailed,
			fmt.Sprintf("no worker script configured for platform %q", platform), nil)
	}
	log := slog.With("platform", platform, "script", filepath.Base(script))

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		log.Warn("no worker slot", "error", err)
		return nil, err
	}
	defer release()

	inv := runner.Invocation{
		Executable: s.cfg.Executable,
		Script:     script,
		Args:       []string{req.Identifier},
	}

	onLine := func(line string) {
		l := output.Classify(line)
		switch l.Kind {
		case output.Status:
			log.Info("worker status", "status", l.Status.Status, "message", l.Status.Message)
			if observe != nil {
				observe(l.Status)
			}
		case output.Noise:
			if l.Text != "" {
				log.Debug("worker output", "line", l.Text)
			}
		}
	}

	start := time.Now()
	outcome, err := s.launcher.RunTimeout(ctx, inv, s.Timeout(req.Timeout), onLine)
	if err != nil {
		se := models.AsScrapeError(err)
		log.Error("worker failed",
			"code", se.Code,
			"error", se.Message,
			"stderr", tail(se.Details, 2048),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	result, err := output.ParseResult(outcome.Stdout)
	if err != nil {
		log.Error("worker output rejected",
			"error", err,
			"stdout", tail(outcome.Stdout, 2048),
			"duration_ms", outcome.Duration.Milliseconds(),
		)
		return nil, err
	}

	log.Info("scrape completed",
		"kind", result.Kind.String(),
		"success", result.Success,
		"records", result.Len(),
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return result, nil
}

// tail keeps the last n bytes of s for logging.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
