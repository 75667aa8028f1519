//go:build linux || darwin

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// applyWorkerLimits sets RLIMIT_CPU and RLIMIT_DATA on the current process.
// The soft CPU limit raises SIGXCPU, the hard limit one second later kills.
func applyWorkerLimits(req Request) error {
	var errs []error

	if req.CPUTimeSec > 0 {
		secs := uint64(req.CPUTimeSec)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: secs, Max: secs + 1}); err != nil {
			errs = append(errs, fmt.Errorf("RLIMIT_CPU: %w", err))
		}
	}

	if req.MemoryMB > 0 {
		limit := uint64(req.MemoryMB) << 20
		debug.SetMemoryLimit(int64(limit) / 4 * 3)
		if err := unix.Setrlimit(unix.RLIMIT_DATA, &unix.Rlimit{Cur: limit, Max: limit}); err != nil {
			errs = append(errs, fmt.Errorf("RLIMIT_DATA: %w", err))
		}
	}

	return errors.Join(errs...)
}

// notifyCPULimit calls fn once when the soft CPU limit is reached.
func notifyCPULimit(fn func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGXCPU)

	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			fn()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// killWorker kills the worker's whole process group.
func killWorker(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// exitDescription names the resource limit that ended a worker which did
// not report an outcome.
func exitDescription(state *os.ProcessState, stderr string) (string, bool) {
	if strings.Contains(stderr, "out of memory") {
		return "Script exceeded the memory limit", true
	}

	if state == nil {
		return "", false
	}

	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return "", false
	}

	switch status.Signal() {
	case unix.SIGXCPU:
		return "Script exceeded the CPU time limit", true
	case unix.SIGKILL:
		return "Script was killed after exceeding its resource limits", true
	default:
		return fmt.Sprintf("Script was terminated by signal: %s", status.Signal()), true
	}
}
