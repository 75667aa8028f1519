package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Sentinel errors returned by executors for failures that are not the
// script's fault. Callers map them to an internal error response.
var (
	ErrWorkerCrashed      = errors.New("sandbox worker exited without an outcome")
	ErrBackendUnavailable = errors.New("sandbox backend unavailable")
)

// Request is one unit of work for an Executor.
type Request struct {
	Code           string
	Timeout        time.Duration
	MaxOutputBytes int
	MaxCallStack   int
	// MemoryMB and CPUTimeSec are enforced by out-of-process backends only.
	// Zero disables the limit.
	MemoryMB   int
	CPUTimeSec int
}

// TimeoutMS returns the wall-clock budget in milliseconds.
func (r Request) TimeoutMS() int64 {
	return r.Timeout.Milliseconds()
}

// Outcome is the result of running a script. A script failure (exception,
// timeout, resource limit) is an Outcome with Succeeded=false, not an error.
type Outcome struct {
	Succeeded bool
	Output    []string
	Result    *string
	Error     string
	TimedOut  bool
	Duration  time.Duration
}

// Executor runs untrusted code. Implementations return an error only when
// the sandbox itself failed.
type Executor interface {
	Execute(ctx context.Context, req Request) (Outcome, error)
}

// TimeoutMessage is the failure message for a script that exceeded its wall-clock budget.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Script execution timed out after %dms", timeout.Milliseconds())
}

func timedOutOutcome(timeout time.Duration, output []string) Outcome {
	return Outcome{
		Succeeded: false,
		Output:    output,
		Error:     TimeoutMessage(timeout),
		TimedOut:  true,
	}
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, errors.New("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // arguments are built by the container backend

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return "", "", 0, err
		}
		exitCode = exitError.ExitCode()
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines the file system operations used to prepare worker directories
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
