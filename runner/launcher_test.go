package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/jobscrape/models"
)

// writeScript writes a /bin/sh worker script and returns an Invocation for it.
func writeScript(t *testing.T, body string, args ...string) Invocation {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("worker scripts need /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return Invocation{Executable: "/bin/sh", Script: path, Args: args}
}

func requireCode(t *testing.T, err error, code string) *models.ScrapeError {
	t.Helper()
	require.Error(t, err)
	var se *models.ScrapeError
	require.True(t, errors.As(err, &se), "expected *models.ScrapeError, got %T", err)
	require.Equal(t, code, se.Code, se.Error())
	return se
}

func TestRun_Success(t *testing.T) {
	inv := writeScript(t, `
echo 'status: init'
echo "{\"status\":\"init\",\"message\":\"$1\"}"
echo 'chromedriver noise' >&2
echo '{"success":true,"data":[],"count":0}'
`, "someone@example.com")

	var mu sync.Mutex
	var lines []string
	l := NewLauncher(10*time.Second, time.Second)
	out, err := l.Run(context.Background(), inv, func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, []string{
		"status: init",
		`{"status":"init","message":"someone@example.com"}`,
		`{"success":true,"data":[],"count":0}`,
	}, lines)
	assert.Equal(t, "status: init\n"+
		`{"status":"init","message":"someone@example.com"}`+"\n"+
		`{"success":true,"data":[],"count":0}`+"\n", out.Stdout)
	assert.Equal(t, "chromedriver noise\n", out.Stderr)
}

func TestRun_TrailingLineWithoutNewline(t *testing.T) {
	inv := writeScript(t, `printf 'a\r\nb'`)

	var lines []string
	out, err := NewLauncher(0, 0).Run(context.Background(), inv, func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
	assert.Equal(t, "a\r\nb", out.Stdout)
}

func TestRun_NonzeroExit(t *testing.T) {
	inv := writeScript(t, `
echo '{"status":"init"}'
echo 'Python Error: cookie expired' >&2
exit 3
`)

	out, err := NewLauncher(0, 0).Run(context.Background(), inv, nil)
	assert.Nil(t, out)

	se := requireCode(t, err, models.ErrCodeProcessFailed)
	assert.Contains(t, se.Message, "code 3")
	assert.Equal(t, "Python Error: cookie expired\n", se.Details)
}

func TestRun_LaunchFailure(t *testing.T) {
	valid := writeScript(t, `exit 0`)

	tests := []struct {
		name string
		inv  Invocation
	}{
		{"missing executable", Invocation{Executable: "/nonexistent/venv/bin/python3", Script: valid.Script}},
		{"empty executable", Invocation{Script: valid.Script}},
		{"missing script", Invocation{Executable: "/bin/sh", Script: filepath.Join(t.TempDir(), "nope.py")}},
		{"script is a directory", Invocation{Executable: "/bin/sh", Script: t.TempDir()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewLauncher(0, 0).Run(context.Background(), tt.inv, nil)
			assert.Nil(t, out)
			se := requireCode(t, err, models.ErrCodeLaunchFailed)
			assert.Contains(t, se.Message, "failed to start worker")
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	inv := writeScript(t, `exec sleep 5`)

	start := time.Now()
	_, err := NewLauncher(200*time.Millisecond, 100*time.Millisecond).Run(context.Background(), inv, nil)
	requireCode(t, err, models.ErrCodeTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRunTimeout_OverridesDefault(t *testing.T) {
	inv := writeScript(t, `exec sleep 5`)

	l := NewLauncher(time.Hour, 100*time.Millisecond)
	_, err := l.RunTimeout(context.Background(), inv, 150*time.Millisecond, nil)
	requireCode(t, err, models.ErrCodeTimeout)
}

func TestRun_CancelTerminatesWorker(t *testing.T) {
	inv := writeScript(t, `
echo '{"status":"waiting_verification"}'
exec sleep 5
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	_, err := NewLauncher(0, 100*time.Millisecond).Run(ctx, inv, func(string) { cancel() })
	requireCode(t, err, models.ErrCodeCanceled)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRun_AlreadyCanceled(t *testing.T) {
	inv := writeScript(t, `echo should-not-run`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLauncher(0, 0).Run(ctx, inv, nil)
	requireCode(t, err, models.ErrCodeCanceled)
}

func TestRun_Env(t *testing.T) {
	inv := writeScript(t, `echo "$JOBSCRAPE_TEST_VALUE"`)

	l := NewLauncher(0, 0)
	l.Env = []string{"JOBSCRAPE_TEST_VALUE=hello"}
	out, err := l.Run(context.Background(), inv, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Stdout)
}
