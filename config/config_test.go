package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			MaxBodyBytes: 1 << 20,
			MCP:          MCPConfig{Enabled: false, Transport: "stdio"},
		},
		Sandbox: SandboxConfig{
			Backend:        BackendProcess,
			TimeoutMS:      5000,
			KillGraceMS:    1000,
			MemoryMB:       256,
			MaxCodeBytes:   64 * 1024,
			MaxOutputBytes: 1 << 20,
			MaxCallStack:   1024,
			MaxConcurrent:  4,
		},
		Policy: PolicyConfig{
			Language:       "javascript",
			DeniedPatterns: DefaultDeniedPatterns,
		},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 5, Burst: 10},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().validate())
	})

	t.Run("InvalidHTTPPort", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.HTTPPort = 0

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server.http_port")
	})

	t.Run("InvalidMCPTransport", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.MCP = MCPConfig{Enabled: true, Transport: "invalid"}

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server.mcp.transport")
	})

	t.Run("MCPTransportIgnoredWhenDisabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.MCP = MCPConfig{Enabled: false, Transport: "invalid"}

		require.NoError(t, cfg.validate())
	})

	t.Run("InvalidSandboxTimeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.TimeoutMS = 0

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sandbox.timeout_ms must be positive")
	})

	t.Run("NegativeSandboxMemory", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.MemoryMB = -1

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sandbox.memory_mb must not be negative")
	})

	t.Run("SandboxMemoryTooSmall", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.MemoryMB = 32

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sandbox.memory_mb must be 0 or at least 128")
	})

	t.Run("ZeroSandboxMemoryDisablesLimit", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.MemoryMB = 0

		require.NoError(t, cfg.validate())
	})

	t.Run("InvalidMaxConcurrent", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.MaxConcurrent = 0

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sandbox.max_concurrent must be positive")
	})

	t.Run("InvalidLoggingMode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Mode = "invalid_mode"

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging.mode")
	})

	t.Run("InvalidLogLevel", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "invalid_level"

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging.level")
	})

	t.Run("InvalidPolicyPattern", func(t *testing.T) {
		cfg := validConfig()
		cfg.Policy.ExtraDeniedPatterns = []PatternConfig{{Name: "broken", Pattern: "("}}

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid policy pattern "broken"`)
	})

	t.Run("InvalidRateLimit", func(t *testing.T) {
		cfg := validConfig()
		cfg.RateLimit.Burst = 0

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate_limit requires positive")
	})

	t.Run("MetricsSettingsIgnoredWhenDisabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics = MetricsConfig{Enabled: false, Exporter: "carrier-pigeon"}

		require.NoError(t, cfg.validate())
	})

	t.Run("InvalidMetricsExporter", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics = MetricsConfig{Enabled: true, Exporter: "carrier-pigeon", ExportIntervalSec: 30}

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid metrics.exporter")
	})

	t.Run("InvalidMetricsInterval", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics = MetricsConfig{Enabled: true, Exporter: MetricsExporterStdout}

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "metrics.export_interval_sec must be positive")
	})

	t.Run("ValidBackendWhenInProcessEnabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.Backend = BackendInProcess
		cfg.Sandbox.EnableInProcessBackend = true

		require.NoError(t, cfg.validate())
	})

	t.Run("InvalidBackendWhenInProcessDisabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.Backend = BackendInProcess

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported sandbox.backend")
	})
}

func TestConfigLoad(t *testing.T) {
	t.Run("DefaultsWithoutFile", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
		assert.Equal(t, BackendProcess, cfg.Sandbox.Backend)
		assert.Equal(t, 5*time.Second, cfg.GetTimeout())
		assert.Equal(t, "javascript", cfg.Policy.Language)
		assert.Equal(t, DefaultDeniedPatterns, cfg.Policy.DeniedPatterns)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, MetricsExporterOTLP, cfg.Metrics.Exporter)
		assert.Equal(t, 30*time.Second, cfg.GetMetricsInterval())
	})

	t.Run("FromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "execbox.yaml")
		content := `
server:
  http_port: 9090
sandbox:
  timeout_ms: 1500
  max_concurrent: 2
policy:
  denied_patterns:
    - name: only_this
      pattern: 'forbidden\('
logging:
  mode: development
  level: debug
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.HTTPPort)
		assert.Equal(t, 1500*time.Millisecond, cfg.GetTimeout())
		assert.Equal(t, 2, cfg.Sandbox.MaxConcurrent)
		assert.Equal(t, []PatternConfig{{Name: "only_this", Pattern: `forbidden\(`}}, cfg.Policy.DeniedPatterns)
		assert.Equal(t, "development", cfg.Logging.Mode)
	})

	t.Run("EnvironmentOverride", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("EXECBOX_SANDBOX_TIMEOUT_MS", "250")

		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, cfg.GetTimeout())
	})

	t.Run("MetricsFromEnvironment", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("EXECBOX_METRICS_ENABLED", "true")
		t.Setenv("EXECBOX_METRICS_EXPORTER", "stdout")

		cfg, err := New()
		require.NoError(t, err)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, MetricsExporterStdout, cfg.Metrics.Exporter)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("InvalidValueFromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "execbox.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sandbox:\n  timeout_ms: -5\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation error")
	})
}

func TestConfigDurations(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, time.Second, cfg.GetKillGrace())
	assert.Equal(t, 6, cfg.GetCPUTimeSec())

	cfg.Sandbox.TimeoutMS = 1200
	assert.Equal(t, 3, cfg.GetCPUTimeSec())

	cfg.Sandbox.CPUTimeSec = 9
	assert.Equal(t, 9, cfg.GetCPUTimeSec())
}
