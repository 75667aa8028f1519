package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	containerWorkerPath = "/execbox-worker"
	containerPidsLimit  = 64
	removeTimeout       = 10 * time.Second
)

// ContainerExecutor implements Executor by running the worker binary inside
// a locked-down Docker or Podman container. The binary must be statically
// linked for the image's platform.
type ContainerExecutor struct {
	logger       *zap.Logger
	runtime      string
	image        string
	workerBinary string
	killGrace    time.Duration
	cmdRunner    CommandRunner
}

// ContainerExecutorOption defines a functional option for ContainerExecutor
type ContainerExecutorOption func(*ContainerExecutor)

// WithContainerCommandRunner sets the CommandRunner used for container cleanup
func WithContainerCommandRunner(cmdRunner CommandRunner) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.cmdRunner = cmdRunner
	}
}

// WithContainerImage sets the image the worker runs in
func WithContainerImage(image string) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.image = image
	}
}

// WithContainerWorkerBinary sets the host path of the worker binary mounted into the container
func WithContainerWorkerBinary(path string) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.workerBinary = path
	}
}

// WithContainerKillGrace sets how long past the timeout a container may live
func WithContainerKillGrace(grace time.Duration) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.killGrace = grace
	}
}

// NewContainerExecutor creates a ContainerExecutor for the given container
// runtime ("docker" or "podman").
func NewContainerExecutor(logger *zap.Logger, runtime string, opts ...ContainerExecutorOption) (*ContainerExecutor, error) {
	executor := &ContainerExecutor{
		logger:    logger,
		runtime:   runtime,
		image:     "gcr.io/distroless/static-debian12:nonroot",
		killGrace: time.Second,
		cmdRunner: &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	if executor.workerBinary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot resolve worker binary: %v", ErrBackendUnavailable, err)
		}
		executor.workerBinary = self
	}

	return executor, nil
}

// Execute runs req in a fresh container
func (c *ContainerExecutor) Execute(ctx context.Context, req Request) (Outcome, error) {
	name := "execbox-" + uuid.NewString()

	newCmd := func(ctx context.Context) *exec.Cmd {
		args := c.runArgs(name, req)
		return exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // arguments are built from configuration
	}

	kill := func(cmd *exec.Cmd) error {
		// killing the CLI client leaves the container running
		c.removeContainer(name)
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}

	return driveWorker(ctx, c.logger, newCmd, req, c.killGrace, kill)
}

// runArgs builds the container run command with security restrictions
func (c *ContainerExecutor) runArgs(name string, req Request) []string {
	args := []string{
		c.runtime, "run",
		"--name", name,
		"--rm",
		"-i",
		"--network", "none",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges:true",
		"--read-only",
		"--user", "nobody",
		"--pids-limit", fmt.Sprintf("%d", containerPidsLimit),
		"-v", fmt.Sprintf("%s:%s:ro", c.workerBinary, containerWorkerPath),
		"--entrypoint", containerWorkerPath,
	}

	if req.MemoryMB > 0 {
		args = append(args,
			"--memory", fmt.Sprintf("%dm", req.MemoryMB),
			"--memory-swap", fmt.Sprintf("%dm", req.MemoryMB),
		)
	}

	if req.CPUTimeSec > 0 {
		args = append(args, "--ulimit", fmt.Sprintf("cpu=%d:%d", req.CPUTimeSec, req.CPUTimeSec+1))
	}

	return append(args, c.image, WorkerCommand)
}

func (c *ContainerExecutor) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.runtime, "rm", "-f", name})
	if err != nil || exitCode != 0 {
		c.logger.Warn("failed to remove container after timeout",
			zap.String("container", name),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", stderr),
			zap.Error(err),
		)
	}
}
