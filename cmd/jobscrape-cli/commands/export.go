package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/jobscrape/output"
)

var exportOut *string

func init() {
	exportOut = exportCmd.Flags().StringP("out", "o", "auto", "CSV file to write; \"auto\" picks a timestamped name.")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export <worker-output-file>",
	Short: "Converts saved worker output into a CSV file.",
	Long: "Reads captured worker stdout (for example from `python my_scraper.py you@example.com > out.log`), " +
		"takes its final result line and writes the records as CSV.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		result, err := output.ParseResult(string(raw))
		if err != nil {
			return err
		}
		return writeCSVFile(cmd.ErrOrStderr(), *exportOut, result.Data)
	},
}
