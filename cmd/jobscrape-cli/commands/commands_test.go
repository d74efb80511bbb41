package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultLine = `{"success":true,"data":[{"title":"Real Data Analyst","company":"DataCorp","date":"2025-10-18","status":"interview","link":"https://hk.jobsdb.com/job/1"}],"count":1}`

const workerScript = `
echo '{"status":"init","message":"starting"}'
echo 'webdriver-manager: driver cached'
echo '` + resultLine + `'
`

// writeConfig creates a config file running platform scripts with /bin/sh
// from a temp dir.
func writeConfig(t *testing.T, scripts map[string]string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("worker scripts need /bin/sh")
	}
	t.Setenv("PYTHON_PATH", "")

	dir := t.TempDir()
	var platforms strings.Builder
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".sh"), []byte(body), 0o644))
		platforms.WriteString("    " + name + ": " + name + ".sh\n")
	}
	path := filepath.Join(dir, "jobscrape.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"worker:\n"+
			"  executable: /bin/sh\n"+
			"  script_dir: "+dir+"\n"+
			"  timeout: 10s\n"+
			"  platforms:\n"+platforms.String()), 0o644))
	return path
}

// execute runs the root command with fresh flag values and returns what it
// wrote to stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestRun_RawPrintsWorkerLine(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"default": workerScript})

	stdout, stderr, err := execute(t, "--config", cfgPath, "run", "me@example.com", "--raw")
	require.NoError(t, err)

	assert.Equal(t, resultLine+"\n", stdout)
	assert.Contains(t, stderr, "scraping default for me@example.com")
	assert.Contains(t, stderr, "[init] starting")
	assert.NotContains(t, stdout, "webdriver-manager")
}

func TestRun_TableAndCSV(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"default": workerScript})
	csvPath := filepath.Join(t.TempDir(), "out.csv")

	stdout, stderr, err := execute(t, "--config", cfgPath, "run", "me@example.com", "--csv", csvPath)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Real Data Analyst")
	assert.Contains(t, stderr, "wrote 1 records to "+csvPath)

	b, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "\ufeffTitle,Company,Date,Status,Link\r\n"))
}

func TestRun_WorkerFailure(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"default": "echo 'selenium crashed' >&2\nexit 3\n"})

	stdout, stderr, err := execute(t, "--config", cfgPath, "run", "me@example.com")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "PROCESS_FAILED")
	assert.Contains(t, stderr, "selenium crashed")
	assert.Empty(t, stdout)
}

func TestExport_WritesCSVWithBOM(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"default": workerScript})
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")
	require.NoError(t, os.WriteFile(logPath, []byte(
		`{"status":"init","message":"starting"}`+"\n"+
			"some driver noise\n"+
			resultLine+"\n"), 0o644))
	csvPath := filepath.Join(dir, "history.csv")

	_, stderr, err := execute(t, "--config", cfgPath, "export", logPath, "-o", csvPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote 1 records to "+csvPath)

	b, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	want := "\ufeff" +
		"Title,Company,Date,Status,Link\r\n" +
		"Real Data Analyst,DataCorp,2025-10-18,interview,https://hk.jobsdb.com/job/1\r\n"
	assert.Equal(t, want, string(b))
}

func TestExport_RejectsOutputWithoutResult(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"default": workerScript})
	logPath := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, os.WriteFile(logPath, []byte(`{"status":"init","message":"starting"}`+"\n"), 0o644))

	_, _, err := execute(t, "--config", cfgPath, "export", logPath, "-o", filepath.Join(t.TempDir(), "x.csv"))
	require.Error(t, err)
}

func TestPlatforms_ListsConfiguredScripts(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"default": workerScript, "linkedin": workerScript})

	stdout, _, err := execute(t, "--config", cfgPath, "platforms")
	require.NoError(t, err)

	assert.Contains(t, stdout, "default (default)")
	assert.Contains(t, stdout, "linkedin")
	assert.Contains(t, stdout, "jobsdb_scraper.py")
}
