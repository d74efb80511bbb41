package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/use-agent/jobscrape/api"
	"github.com/use-agent/jobscrape/config"
	"github.com/use-agent/jobscrape/jobs"
	"github.com/use-agent/jobscrape/notify"
	"github.com/use-agent/jobscrape/scraper"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: $JOBSCRAPE_CONFIG or ./config.yaml)")
	flag.Parse()

	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.MustLoad(*configPath)

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log, os.Stdout)
	slog.Info("jobscrape starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxConcurrent", cfg.Worker.MaxConcurrent,
		"defaultPlatform", cfg.Worker.DefaultPlatform,
	)

	// ── 3. Initialise scraper (worker pool) ─────────────────────────
	sc := scraper.NewScraper(cfg.Worker)

	// ── 4. Initialise notifications ─────────────────────────────────
	var sinks []notify.Sink
	if k := notify.NewKafka(cfg.Notify.Kafka); k != nil {
		sinks = append(sinks, k)
	}
	notifier := notify.NewNotifier(sinks...)
	defer func() {
		if err := notifier.Close(); err != nil {
			slog.Error("failed to close notifier", "error", err)
		}
	}()

	// ── 5. Initialise run manager ───────────────────────────────────
	manager := jobs.NewManager(jobs.NewStore(cfg.Runs.TTL, cfg.Runs.MaxEntries), sc, notifier)

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(sc, manager, cfg, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Background runs get the rest of the shutdown window.
	if err := manager.Shutdown(ctx); err != nil {
		slog.Error("runs still in flight at shutdown", "error", err)
	}

	slog.Info("jobscrape stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}
