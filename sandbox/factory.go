package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
)

// NewExecutor creates an appropriate sandbox executor based on the configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (Executor, error) {
	sc := cfg.Sandbox

	logger.Info("creating sandbox executor",
		zap.String("backend", sc.Backend),
		zap.Int("timeout_ms", sc.TimeoutMS),
		zap.Int("kill_grace_ms", sc.KillGraceMS),
		zap.Int("memory_mb", sc.MemoryMB),
		zap.Int("cpu_time_sec", cfg.GetCPUTimeSec()),
		zap.Bool("isolate_network", sc.IsolateNetwork),
	)

	switch sc.Backend {
	case config.BackendProcess:
		opts := []ProcessExecutorOption{
			WithKillGrace(cfg.GetKillGrace()),
			WithNetworkIsolation(sc.IsolateNetwork),
		}
		if sc.WorkerBinary != "" {
			opts = append(opts, WithWorkerCommand(sc.WorkerBinary, WorkerCommand))
		}
		return NewProcessExecutor(logger, opts...)
	case config.BackendDocker, config.BackendPodman:
		opts := []ContainerExecutorOption{WithContainerKillGrace(cfg.GetKillGrace())}
		if sc.ContainerImage != "" {
			opts = append(opts, WithContainerImage(sc.ContainerImage))
		}
		if sc.WorkerBinary != "" {
			opts = append(opts, WithContainerWorkerBinary(sc.WorkerBinary))
		}
		return NewContainerExecutor(logger, sc.Backend, opts...)
	case config.BackendInProcess:
		if !sc.EnableInProcessBackend {
			return nil, fmt.Errorf("%w: inprocess backend is disabled", ErrBackendUnavailable)
		}
		return NewInProcessExecutor(logger), nil
	default:
		return nil, fmt.Errorf("%w: unsupported backend: %s", ErrBackendUnavailable, sc.Backend)
	}
}
