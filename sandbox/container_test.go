package sandbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu       sync.Mutex
	calls    [][]string
	exitCode int
	err      error
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	return "", "", m.exitCode, m.err
}

func TestContainerExecutorRunArgs(t *testing.T) {
	logger := zaptest.NewLogger(t)

	executor, err := NewContainerExecutor(logger, "docker",
		WithContainerWorkerBinary("/opt/execbox/server"),
		WithContainerImage("example.org/execbox-runtime:1"),
	)
	require.NoError(t, err)

	t.Run("SecurityFlags", func(t *testing.T) {
		args := executor.runArgs("execbox-test", Request{MemoryMB: 256, CPUTimeSec: 6})
		joined := strings.Join(args, " ")

		assert.Equal(t, "docker", args[0])
		assert.Equal(t, "run", args[1])
		assert.Contains(t, joined, "--name execbox-test")
		assert.Contains(t, joined, "--rm -i")
		assert.Contains(t, joined, "--network none")
		assert.Contains(t, joined, "--cap-drop ALL")
		assert.Contains(t, joined, "--security-opt no-new-privileges:true")
		assert.Contains(t, joined, "--read-only")
		assert.Contains(t, joined, "--user nobody")
		assert.Contains(t, joined, "--memory 256m")
		assert.Contains(t, joined, "--memory-swap 256m")
		assert.Contains(t, joined, "--ulimit cpu=6:7")
		assert.Contains(t, joined, "-v /opt/execbox/server:/execbox-worker:ro")
		assert.Contains(t, joined, "--entrypoint /execbox-worker")

		assert.Equal(t, []string{"example.org/execbox-runtime:1", WorkerCommand}, args[len(args)-2:])
	})

	t.Run("NoLimitsWhenZero", func(t *testing.T) {
		joined := strings.Join(executor.runArgs("execbox-test", Request{}), " ")
		assert.NotContains(t, joined, "--memory")
		assert.NotContains(t, joined, "--ulimit")
	})

	t.Run("PodmanRuntime", func(t *testing.T) {
		podman, err := NewContainerExecutor(logger, "podman", WithContainerWorkerBinary("/bin/true"))
		require.NoError(t, err)

		args := podman.runArgs("execbox-test", Request{})
		assert.Equal(t, "podman", args[0])
		assert.Equal(t, "gcr.io/distroless/static-debian12:nonroot", args[len(args)-2])
	})
}

func TestContainerExecutorRemoveContainer(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("ForceRemove", func(t *testing.T) {
		runner := &MockCommandRunner{}
		executor, err := NewContainerExecutor(logger, "podman",
			WithContainerCommandRunner(runner),
			WithContainerWorkerBinary("/bin/true"),
		)
		require.NoError(t, err)

		executor.removeContainer("execbox-abc")

		require.Len(t, runner.calls, 1)
		assert.Equal(t, []string{"podman", "rm", "-f", "execbox-abc"}, runner.calls[0])
	})

	t.Run("FailureOnlyLogged", func(t *testing.T) {
		runner := &MockCommandRunner{exitCode: 1, err: errors.New("no such container")}
		executor, err := NewContainerExecutor(logger, "docker",
			WithContainerCommandRunner(runner),
			WithContainerWorkerBinary("/bin/true"),
		)
		require.NoError(t, err)

		assert.NotPanics(t, func() { executor.removeContainer("execbox-gone") })
	})
}

func TestContainerExecutorMissingRuntime(t *testing.T) {
	executor, err := NewContainerExecutor(zaptest.NewLogger(t), "/nonexistent/docker",
		WithContainerWorkerBinary("/bin/true"),
	)
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), Request{Code: "1"})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
