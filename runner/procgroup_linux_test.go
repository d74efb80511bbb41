package runner

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/jobscrape/models"
)

// alive reports whether pid is running. Zombies count as gone: orphans may
// never be reaped inside a container.
func alive(pid int) bool {
	if syscall.Kill(pid, 0) != nil {
		return false
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	require.NoError(t, err)
	return pid
}

func TestRun_CancelKillsWorkerChildren(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	inv := writeScript(t, `
sleep 30 >/dev/null 2>&1 &
echo $! > "$1"
echo ready
wait
`, pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := NewLauncher(0, 200*time.Millisecond).Run(ctx, inv, func(line string) {
		if line == "ready" {
			cancel()
		}
	})
	requireCode(t, err, models.ErrCodeCanceled)

	child := readPID(t, pidFile)
	require.Eventually(t, func() bool { return !alive(child) }, 2*time.Second, 20*time.Millisecond)
}

func TestRun_TimeoutKillsChildHoldingPipes(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	inv := writeScript(t, `
trap '' INT
sleep 30 &
echo $! > "$1"
wait
`, pidFile)

	start := time.Now()
	_, err := NewLauncher(0, 100*time.Millisecond).RunTimeout(context.Background(), inv, 500*time.Millisecond, nil)
	requireCode(t, err, models.ErrCodeTimeout)
	require.Less(t, time.Since(start), 5*time.Second)

	child := readPID(t, pidFile)
	require.Eventually(t, func() bool { return !alive(child) }, 2*time.Second, 20*time.Millisecond)
}

func TestRun_SuccessKillsLeftoverChildren(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	inv := writeScript(t, `
sleep 30 >/dev/null 2>&1 &
echo $! > "$1"
echo '[]'
`, pidFile)

	out, err := NewLauncher(0, 100*time.Millisecond).Run(context.Background(), inv, nil)
	require.NoError(t, err)
	require.Equal(t, 0, out.ExitCode)

	child := readPID(t, pidFile)
	require.Eventually(t, func() bool { return !alive(child) }, 2*time.Second, 20*time.Millisecond)
}
