//go:build windows

package job

import (
	"os"
	"os/exec"
	"syscall"
)

func isolate(*exec.Cmd) {}

// signalGroup kills the worker itself, windows has no interrupt for child processes
func signalGroup(proc *os.Process, _ syscall.Signal) error {
	return proc.Kill()
}
