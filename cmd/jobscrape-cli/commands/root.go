package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/use-agent/jobscrape/config"
)

var (
	configPath *string
	logLevel   *string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "jobscrape-cli",
	Short: "jobscrape-cli runs job-application scrapers from the terminal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}

		var level slog.Level
		if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", *logLevel, err)
		}
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "", "Config file (default: $JOBSCRAPE_CONFIG or ./config.yaml).")
	logLevel = rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn or error.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
