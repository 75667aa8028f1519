//go:build !linux && !darwin

package sandbox

import (
	"os"
	"os/exec"
	"strings"
	"syscall"
)

func applyWorkerLimits(Request) error { return nil }

func notifyCPULimit(func()) (stop func()) { return func() {} }

func killWorker(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func exitDescription(_ *os.ProcessState, stderr string) (string, bool) {
	if strings.Contains(stderr, "out of memory") {
		return "Script exceeded the memory limit", true
	}
	return "", false
}

func workerSysProcAttr(bool) *syscall.SysProcAttr { return nil }
