package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (EXECBOX_SANDBOX_TIMEOUT_MS).
const EnvPrefix = "EXECBOX"

// MinMemoryMB is the smallest non-zero sandbox.memory_mb accepted.
const MinMemoryMB = 128

// Supported metrics exporters
const (
	MetricsExporterOTLP   = "otlp"
	MetricsExporterStdout = "stdout"
)

// Supported sandbox backends
const (
	BackendProcess   = "process"
	BackendDocker    = "docker"
	BackendPodman    = "podman"
	BackendInProcess = "inprocess"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort           int       `mapstructure:"http_port"`
	MaxBodyBytes       int64     `mapstructure:"max_body_bytes"`
	ReadTimeoutSec     int       `mapstructure:"read_timeout_sec"`
	ShutdownTimeoutSec int       `mapstructure:"shutdown_timeout_sec"`
	MCP                MCPConfig `mapstructure:"mcp"`
}

// MCPConfig holds configuration of the optional MCP tool server
type MCPConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend                string `mapstructure:"backend"`
	EnableInProcessBackend bool   `mapstructure:"enable_inprocess_backend"`
	TimeoutMS              int    `mapstructure:"timeout_ms"`
	KillGraceMS            int    `mapstructure:"kill_grace_ms"`
	MemoryMB               int    `mapstructure:"memory_mb"`
	CPUTimeSec             int    `mapstructure:"cpu_time_sec"`
	MaxCodeBytes           int    `mapstructure:"max_code_bytes"`
	MaxOutputBytes         int    `mapstructure:"max_output_bytes"`
	MaxCallStack           int    `mapstructure:"max_call_stack"`
	MaxConcurrent          int    `mapstructure:"max_concurrent"`
	IsolateNetwork         bool   `mapstructure:"isolate_network"`
	WorkerBinary           string `mapstructure:"worker_binary"`
	ContainerImage         string `mapstructure:"container_image"`
}

// PolicyConfig holds the pre-execution source policy
type PolicyConfig struct {
	Language            string          `mapstructure:"language"`
	DeniedPatterns      []PatternConfig `mapstructure:"denied_patterns"`
	ExtraDeniedPatterns []PatternConfig `mapstructure:"extra_denied_patterns"`
	PatternsFile        string          `mapstructure:"patterns_file"`
}

// PatternConfig is one named entry of the denied pattern set
type PatternConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
}

// RateLimitConfig holds per-client request rate limiting
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// MetricsConfig holds OpenTelemetry metric export. The OTLP exporter also
// honours the standard OTEL_EXPORTER_OTLP_* environment variables.
type MetricsConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Exporter          string `mapstructure:"exporter"`
	ExportIntervalSec int    `mapstructure:"export_interval_sec"`
	OTLPEndpoint      string `mapstructure:"otlp_endpoint"`
	OTLPInsecure      bool   `mapstructure:"otlp_insecure"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// DefaultDeniedPatterns is the denied pattern set applied when policy.denied_patterns is not configured.
var DefaultDeniedPatterns = []PatternConfig{
	{Name: "require", Pattern: `require\s*\(`},
	{Name: "import", Pattern: `import\s+`},
	{Name: "process", Pattern: `process\.`},
	{Name: "global", Pattern: `global\.`},
	{Name: "eval", Pattern: `eval\s*\(`},
	{Name: "function_constructor", Pattern: `Function\s*\(`},
	{Name: "set_timeout", Pattern: `setTimeout`},
	{Name: "set_interval", Pattern: `setInterval`},
	{Name: "fetch", Pattern: `fetch\s*\(`},
	{Name: "xml_http_request", Pattern: `XMLHttpRequest`},
	{Name: "document", Pattern: `document\.`},
	{Name: "window", Pattern: `window\.`},
	{Name: "local_storage", Pattern: `localStorage`},
	{Name: "session_storage", Pattern: `sessionStorage`},
	{Name: "fs", Pattern: `fs\.`},
	{Name: "child_process", Pattern: `child_process`},
	{Name: "os", Pattern: `os\.`},
}

// New loads and validates the application configuration from config.yaml in
// the working directory or ./config.
func New() (*Config, error) {
	return Load("")
}

// Load loads the configuration from path, or searches the default locations
// when path is empty. A missing default config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(config.Policy.DeniedPatterns) == 0 {
		config.Policy.DeniedPatterns = append([]PatternConfig(nil), DefaultDeniedPatterns...)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.read_timeout_sec", 10)
	v.SetDefault("server.shutdown_timeout_sec", 15)
	v.SetDefault("server.mcp.enabled", false)
	v.SetDefault("server.mcp.transport", "stdio")
	v.SetDefault("server.mcp.http_port", 8081)

	v.SetDefault("sandbox.backend", BackendProcess)
	v.SetDefault("sandbox.enable_inprocess_backend", false)
	v.SetDefault("sandbox.timeout_ms", 5000)
	v.SetDefault("sandbox.kill_grace_ms", 1000)
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.cpu_time_sec", 0)
	v.SetDefault("sandbox.max_code_bytes", 64*1024)
	v.SetDefault("sandbox.max_output_bytes", 1<<20)
	v.SetDefault("sandbox.max_call_stack", 1024)
	v.SetDefault("sandbox.max_concurrent", 8)
	v.SetDefault("sandbox.isolate_network", false)
	v.SetDefault("sandbox.worker_binary", "")
	v.SetDefault("sandbox.container_image", "gcr.io/distroless/static-debian12:nonroot")

	v.SetDefault("policy.language", "javascript")
	v.SetDefault("policy.patterns_file", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.exporter", MetricsExporterOTLP)
	v.SetDefault("metrics.export_interval_sec", 30)
	v.SetDefault("metrics.otlp_endpoint", "")
	v.SetDefault("metrics.otlp_insecure", false)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got: %d", c.Server.MaxBodyBytes)
	}

	if c.Server.MCP.Enabled && c.Server.MCP.Transport != "stdio" && c.Server.MCP.Transport != "http" {
		return fmt.Errorf("invalid server.mcp.transport: %s, must be 'stdio' or 'http'", c.Server.MCP.Transport)
	}

	if c.Sandbox.TimeoutMS <= 0 {
		return fmt.Errorf("sandbox.timeout_ms must be positive, got: %d", c.Sandbox.TimeoutMS)
	}

	if c.Sandbox.KillGraceMS < 0 {
		return fmt.Errorf("sandbox.kill_grace_ms must not be negative, got: %d", c.Sandbox.KillGraceMS)
	}

	if c.Sandbox.MemoryMB < 0 {
		return fmt.Errorf("sandbox.memory_mb must not be negative, got: %d", c.Sandbox.MemoryMB)
	}

	// the worker's Go runtime alone needs tens of megabytes of data segment
	if c.Sandbox.MemoryMB > 0 && c.Sandbox.MemoryMB < MinMemoryMB {
		return fmt.Errorf("sandbox.memory_mb must be 0 or at least %d, got: %d", MinMemoryMB, c.Sandbox.MemoryMB)
	}

	if c.Sandbox.CPUTimeSec < 0 {
		return fmt.Errorf("sandbox.cpu_time_sec must not be negative, got: %d", c.Sandbox.CPUTimeSec)
	}

	if c.Sandbox.MaxCodeBytes <= 0 {
		return fmt.Errorf("sandbox.max_code_bytes must be positive, got: %d", c.Sandbox.MaxCodeBytes)
	}

	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be positive, got: %d", c.Sandbox.MaxOutputBytes)
	}

	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("sandbox.max_concurrent must be positive, got: %d", c.Sandbox.MaxConcurrent)
	}

	supportedBackends := map[string]bool{
		BackendProcess:   true,
		BackendDocker:    true,
		BackendPodman:    true,
		BackendInProcess: c.Sandbox.EnableInProcessBackend, // in-process only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Policy.Language == "" {
		return errors.New("policy.language must not be empty")
	}

	for _, list := range [][]PatternConfig{c.Policy.DeniedPatterns, c.Policy.ExtraDeniedPatterns} {
		for _, p := range list {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fmt.Errorf("invalid policy pattern %q: %w", p.Name, err)
			}
		}
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit requires positive requests_per_second and burst, got: %v/%d",
			c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Exporter != MetricsExporterOTLP && c.Metrics.Exporter != MetricsExporterStdout {
			return fmt.Errorf("invalid metrics.exporter: %s, must be 'otlp' or 'stdout'", c.Metrics.Exporter)
		}
		if c.Metrics.ExportIntervalSec <= 0 {
			return fmt.Errorf("metrics.export_interval_sec must be positive, got: %d", c.Metrics.ExportIntervalSec)
		}
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutMS) * time.Millisecond
}

// GetMetricsInterval returns the metric export period
func (c *Config) GetMetricsInterval() time.Duration {
	return time.Duration(c.Metrics.ExportIntervalSec) * time.Second
}

// GetKillGrace returns how long past the timeout a worker may live before it is killed
func (c *Config) GetKillGrace() time.Duration {
	return time.Duration(c.Sandbox.KillGraceMS) * time.Millisecond
}

// GetCPUTimeSec returns the worker CPU-time limit in seconds. When not
// configured it is derived from the wall-clock budget.
func (c *Config) GetCPUTimeSec() int {
	if c.Sandbox.CPUTimeSec > 0 {
		return c.Sandbox.CPUTimeSec
	}
	return (c.Sandbox.TimeoutMS+999)/1000 + 1
}
