package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// ProcessExecutor implements Executor by re-executing a worker binary for
// every request. The worker gets an empty environment, a throwaway working
// directory and its own process group.
type ProcessExecutor struct {
	logger         *zap.Logger
	binary         string
	args           []string
	killGrace      time.Duration
	isolateNetwork bool
	fs             FileSystem
}

// ProcessExecutorOption defines a functional option for ProcessExecutor
type ProcessExecutorOption func(*ProcessExecutor)

// WithWorkerCommand sets the worker binary and its arguments
func WithWorkerCommand(binary string, args ...string) ProcessExecutorOption {
	return func(p *ProcessExecutor) {
		p.binary = binary
		p.args = args
	}
}

// WithKillGrace sets how long past the timeout a worker may live
func WithKillGrace(grace time.Duration) ProcessExecutorOption {
	return func(p *ProcessExecutor) {
		p.killGrace = grace
	}
}

// WithNetworkIsolation runs workers in new user and network namespaces (Linux only)
func WithNetworkIsolation(enabled bool) ProcessExecutorOption {
	return func(p *ProcessExecutor) {
		p.isolateNetwork = enabled
	}
}

// WithProcessFileSystem sets the FileSystem used for worker directories
func WithProcessFileSystem(fs FileSystem) ProcessExecutorOption {
	return func(p *ProcessExecutor) {
		p.fs = fs
	}
}

// NewProcessExecutor creates a ProcessExecutor. Without WithWorkerCommand the
// running executable is used with the sandbox-worker subcommand.
func NewProcessExecutor(logger *zap.Logger, opts ...ProcessExecutorOption) (*ProcessExecutor, error) {
	executor := &ProcessExecutor{
		logger:    logger,
		killGrace: time.Second,
		fs:        &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	if executor.binary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot resolve worker binary: %v", ErrBackendUnavailable, err)
		}
		executor.binary = self
		executor.args = []string{WorkerCommand}
	}

	return executor, nil
}

// Execute runs req in a fresh worker process
func (p *ProcessExecutor) Execute(ctx context.Context, req Request) (Outcome, error) {
	workdir, err := p.fs.MkdirTemp("", "execbox-worker-*")
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create worker dir: %w", err)
	}
	defer func() {
		if rmErr := p.fs.RemoveAll(workdir); rmErr != nil {
			p.logger.Error("failed to remove worker directory", zap.String("path", workdir), zap.Error(rmErr))
		}
	}()

	newCmd := func(ctx context.Context) *exec.Cmd {
		cmd := exec.CommandContext(ctx, p.binary, p.args...) //nolint:gosec // worker binary comes from configuration
		cmd.Dir = workdir
		cmd.Env = []string{}
		cmd.SysProcAttr = workerSysProcAttr(p.isolateNetwork)
		return cmd
	}

	return driveWorker(ctx, p.logger, newCmd, req, p.killGrace, killWorker)
}
