//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func interruptGroup(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

func killGroup(int) bool { return false }
