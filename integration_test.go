package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/execution"
	"github.com/isdmx/execbox/httpserver"
	"github.com/isdmx/execbox/logger"
	"github.com/isdmx/execbox/metrics"
	"github.com/isdmx/execbox/sandbox"
	"github.com/isdmx/execbox/validator"
)

// The test binary doubles as the sandbox worker for the process backend.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == sandbox.WorkerCommand {
		os.Exit(sandbox.RunWorker(os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

func integrationConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("EXECBOX_SANDBOX_TIMEOUT_MS", "700")
	t.Setenv("EXECBOX_RATE_LIMIT_ENABLED", "false")

	cfg, err := config.New()
	require.NoError(t, err)
	return cfg
}

type stack struct {
	server *httptest.Server
	reader *sdkmetric.ManualReader
}

func newStack(t *testing.T, cfg *config.Config) *stack {
	t.Helper()
	log := zaptest.NewLogger(t)

	v, err := validator.New(cfg, log)
	require.NoError(t, err)

	exec, err := sandbox.NewExecutor(log, cfg)
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	rec, err := metrics.NewRecorder(provider.Meter(metrics.InstrumentationName))
	require.NoError(t, err)

	svc := execution.NewService(cfg, log, v, exec, rec)
	srv := httptest.NewServer(httpserver.New(cfg, log, svc).Handler())
	t.Cleanup(srv.Close)

	return &stack{server: srv, reader: reader}
}

func (s *stack) execute(t *testing.T, payload map[string]any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(s.server.URL+"/api/execute-code", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (s *stack) executions(t *testing.T) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, s.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "execbox.executions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

// TestEndToEndProcessBackend drives the default stack over real HTTP with
// every script running in a separate worker process.
func TestEndToEndProcessBackend(t *testing.T) {
	cfg := integrationConfig(t)
	require.Equal(t, config.BackendProcess, cfg.Sandbox.Backend)

	s := newStack(t, cfg)

	t.Run("HelloWorld", func(t *testing.T) {
		status, body := s.execute(t, map[string]any{"code": `console.log("Hello, World!");`, "language": "javascript"})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Hello, World!", body["output"])
		assert.Contains(t, body, "executionTime")
	})

	t.Run("ArrayMap", func(t *testing.T) {
		status, body := s.execute(t, map[string]any{"code": `const arr = [1, 2, 3]; console.log(arr.map(x => x * 2).join(","));`})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "2,4,6", body["output"])
	})

	t.Run("Throw", func(t *testing.T) {
		status, body := s.execute(t, map[string]any{"code": `console.log("partial"); throw new Error("boom");`})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "boom", body["error"])
		assert.Equal(t, "partial", body["output"])
	})

	t.Run("UnboundedLoop", func(t *testing.T) {
		status, body := s.execute(t, map[string]any{"code": `console.log("spinning"); while (true) {}`})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Script execution timed out after 700ms", body["error"])
		assert.Equal(t, "spinning", body["output"])
	})

	t.Run("NoHostCapabilities", func(t *testing.T) {
		status, body := s.execute(t, map[string]any{"code": `[typeof process, typeof require, typeof fetch, typeof globalThis].join(" ")`})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "undefined undefined undefined undefined", body["result"])
	})

	t.Run("StateDoesNotLeak", func(t *testing.T) {
		status, body := s.execute(t, map[string]any{"code": `var leaked = 42; Array.prototype.leak = 1; leaked + [].leak`})
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, true, body["success"])
		require.Equal(t, "43", body["result"])

		status, body = s.execute(t, map[string]any{"code": `typeof leaked + " " + typeof [].leak`})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "undefined undefined", body["result"])
	})

	t.Run("Rejected", func(t *testing.T) {
		status, body := s.execute(t, map[string]any{"code": `if (false) { require("fs") }`})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Code contains restricted operations", body["error"])
	})

	// seven sandbox runs plus one rejection
	assert.Equal(t, int64(8), s.executions(t))
}

func TestLoggerFromConfig(t *testing.T) {
	cfg := integrationConfig(t)
	cfg.Logging.Mode = "development"
	cfg.Logging.Level = "debug"

	log, err := logger.NewFromConfig(cfg)
	require.NoError(t, err)
	log.Debug("integration logger ready")
	_ = log.Sync()
}
