//go:build unix

package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Workers run in their own process group so that browsers and drivers they
// spawn are signalled with them.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interruptGroup(p *os.Process) error {
	return groupSignal(p.Pid, syscall.SIGINT)
}

// killGroup kills whatever is left in the worker's group. It reports
// whether anything was still there.
func killGroup(pid int) bool {
	return groupSignal(pid, syscall.SIGKILL) == nil
}

func groupSignal(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
