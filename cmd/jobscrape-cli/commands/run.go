package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/jobscrape/export"
	"github.com/use-agent/jobscrape/models"
	"github.com/use-agent/jobscrape/scraper"
)

var (
	runPlatform *string
	runTimeout  *int
	runCSV      *string
	runRaw      *bool
)

func init() {
	runPlatform = runCmd.Flags().StringP("platform", "p", "", "Platform to scrape (default: the configured default platform).")
	runTimeout = runCmd.Flags().Int("timeout", 0, "Worker timeout in seconds (default: worker.timeout).")
	runCSV = runCmd.Flags().String("csv", "", "Also write the records to this CSV file. Use \"auto\" for a timestamped name.")
	runRaw = runCmd.Flags().Bool("raw", false, "Print the worker's result line instead of a table.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <identifier> [--platform <name>] [--csv <file>]",
	Short: "Runs one scraper worker locally and prints its result.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
		sc := scraper.NewScraper(cfg.Worker)
		req := &models.ScrapeRequest{
			Identifier: args[0],
			Platform:   *runPlatform,
			Timeout:    *runTimeout,
		}
		req.Defaults()

		platform, _ := sc.Resolve(req.Platform)
		fmt.Fprintf(stderr, "scraping %s for %s\n", platform, req.Identifier)

		start := time.Now()
		result, err := sc.DoScrape(cmd.Context(), req, func(msg models.StatusMessage) {
			if msg.Message != "" {
				fmt.Fprintf(stderr, "  [%s] %s\n", msg.Status, msg.Message)
			} else {
				fmt.Fprintf(stderr, "  [%s]\n", msg.Status)
			}
		})
		if err != nil {
			se := models.AsScrapeError(err)
			if se.Details != "" {
				fmt.Fprintln(stderr, se.Details)
			}
			return fmt.Errorf("%s: %s", se.Code, se.Message)
		}
		fmt.Fprintf(stderr, "done in %s\n", time.Since(start).Round(time.Millisecond))

		if *runRaw {
			body, err := result.MarshalJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, string(body))
		} else {
			if !result.Success && result.Message != "" {
				fmt.Fprintf(stderr, "worker reported failure: %s\n", result.Message)
			}
			export.RenderTable(stdout, result.Data, nil)
		}

		if *runCSV != "" {
			return writeCSVFile(stderr, *runCSV, result.Data)
		}
		return nil
	},
}

// writeCSVFile writes records to path and reports it on log.
func writeCSVFile(log io.Writer, path string, records []models.Record) error {
	if path == "auto" {
		path = export.Filename(time.Now())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteCSV(f, records, nil); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(log, "wrote %d records to %s\n", len(records), path)
	return nil
}
