package commands

import (
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(platformsCmd)
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "Lists the configured platforms and their worker scripts.",
	Run: func(cmd *cobra.Command, args []string) {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Platform", "Script", "Found"})

		for _, name := range slices.Sorted(maps.Keys(cfg.Worker.Platforms)) {
			script := cfg.Worker.Platforms[name]
			if !filepath.IsAbs(script) {
				script = filepath.Join(cfg.Worker.ScriptDir, script)
			}
			found := "yes"
			if _, err := os.Stat(script); err != nil {
				found = "no"
			}
			if name == cfg.Worker.DefaultPlatform {
				name += " (default)"
			}
			t.AppendRow(table.Row{name, script, found})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
	},
}
