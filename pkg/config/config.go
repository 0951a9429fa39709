package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/load"
)

// Config represents the main configuration structure
type Config struct {
	// Listen address for the HTTP facade (e.g., ":80" or "0.0.0.0:8080")
	Listen string `yaml:"listen"`

	// Hostname shown on the status page (default: os.Hostname)
	Hostname string `yaml:"hostname,omitempty"`

	// StartUnhealthy starts the service with the health flag cleared
	StartUnhealthy bool `yaml:"start_unhealthy"`

	// Load generator configuration
	Load LoadConfig `yaml:"load"`

	// HTTP server configuration
	HTTP HTTPConfig `yaml:"http"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// GRPC health service configuration (optional)
	GRPC *GRPCConfig `yaml:"grpc,omitempty"`

	// Tracing configuration (optional)
	Tracing *TracingConfig `yaml:"tracing,omitempty"`

	// Logging configuration (optional)
	Logging *LoggingConfig `yaml:"logging,omitempty"`

	// Profiling configuration (optional)
	Profiling *ProfilingConfig `yaml:"profiling,omitempty"`
}

// LoadConfig represents the CPU load generator settings
type LoadConfig struct {
	// IntervalSeconds a pool runs before expiring (default: 300)
	IntervalSeconds int `yaml:"interval_seconds"`

	// UtilizationPercent per worker, 0-100 (default: 90 when unset)
	UtilizationPercent *int `yaml:"utilization_percent,omitempty"`

	// CoreFraction of CPUs that get a worker (default: 0.9)
	CoreFraction float64 `yaml:"core_fraction"`

	// CPUCount overrides the detected CPU count (0 = detect)
	CPUCount int `yaml:"cpu_count,omitempty"`

	// GracePeriod bounds the wait for workers on stop (default: 5s)
	GracePeriod time.Duration `yaml:"grace_period"`
}

// HTTPConfig represents HTTP server settings
type HTTPConfig struct {
	// EnableHTTP2 serves cleartext HTTP/2 (h2c) alongside HTTP/1.1
	EnableHTTP2 bool `yaml:"enable_http2"`

	// AccessLog enables HTTP access logging
	AccessLog bool `yaml:"access_log"`

	// ControlRateLimit caps POST requests per client per second (0 = unlimited)
	ControlRateLimit float64 `yaml:"control_rate_limit"`

	// ControlBurst is the request burst allowed above the rate (default: 5)
	ControlBurst int `yaml:"control_burst"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	// Enabled exposes Prometheus metrics on the facade
	Enabled bool `yaml:"enabled"`

	// Path for metrics endpoint (default: "/metrics")
	Path string `yaml:"path"`
}

// GRPCConfig represents the gRPC health service settings
type GRPCConfig struct {
	// Enabled starts the grpc.health.v1 service
	Enabled bool `yaml:"enabled"`

	// Listen address (default: ":9090")
	Listen string `yaml:"listen"`

	// ServiceName reported alongside the overall status (default: "vmsim")
	ServiceName string `yaml:"service_name"`
}

// TracingConfig represents distributed tracing configuration
type TracingConfig struct {
	// Enabled enables distributed tracing
	Enabled bool `yaml:"enabled"`

	// ServiceName for tracing
	ServiceName string `yaml:"service_name"`

	// Endpoint for trace collector (e.g., Jaeger)
	Endpoint string `yaml:"endpoint"`

	// SampleRate (0.0-1.0) for sampling traces
	SampleRate float64 `yaml:"sample_rate"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error", "fatal"
	Level string `yaml:"level"`

	// Format: "text" or "json"
	Format string `yaml:"format"`

	// AddCaller adds caller info to logs
	AddCaller bool `yaml:"add_caller"`
}

// ProfilingConfig represents pprof settings
type ProfilingConfig struct {
	// Enabled starts the pprof HTTP server
	Enabled bool `yaml:"enabled"`

	// Listen address for pprof (default: "localhost:6060")
	Listen string `yaml:"listen"`

	// CPUProfilePath writes a CPU profile for the lifetime of the process
	CPUProfilePath string `yaml:"cpu_profile_path,omitempty"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// setDefaults sets default values for optional configuration
func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}

	// Load defaults
	if c.Load.IntervalSeconds == 0 {
		c.Load.IntervalSeconds = load.DefaultIntervalSeconds
	}
	if c.Load.UtilizationPercent == nil {
		pct := load.DefaultUtilizationPercent
		c.Load.UtilizationPercent = &pct
	}
	if c.Load.CoreFraction == 0 {
		c.Load.CoreFraction = load.DefaultCoreFraction
	}
	if c.Load.GracePeriod == 0 {
		c.Load.GracePeriod = load.DefaultGracePeriod
	}

	// HTTP defaults
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 5 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.ControlRateLimit > 0 && c.HTTP.ControlBurst == 0 {
		c.HTTP.ControlBurst = 5
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.GRPC != nil && c.GRPC.Enabled {
		if c.GRPC.Listen == "" {
			c.GRPC.Listen = ":9090"
		}
		if c.GRPC.ServiceName == "" {
			c.GRPC.ServiceName = "vmsim"
		}
	}

	if c.Tracing != nil && c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			c.Tracing.ServiceName = "vmsim"
		}
		if c.Tracing.SampleRate == 0 {
			c.Tracing.SampleRate = 1.0
		}
	}

	if c.Logging != nil {
		if c.Logging.Level == "" {
			c.Logging.Level = "info"
		}
		if c.Logging.Format == "" {
			c.Logging.Format = "text"
		}
	}

	if c.Profiling != nil && c.Profiling.Enabled && c.Profiling.Listen == "" {
		c.Profiling.Listen = "localhost:6060"
	}
}

// DefaultLoad returns the load configuration used by toggles
func (c *Config) DefaultLoad() load.LoadConfig {
	pct := load.DefaultUtilizationPercent
	if c.Load.UtilizationPercent != nil {
		pct = *c.Load.UtilizationPercent
	}
	return load.LoadConfig{
		IntervalSeconds:    c.Load.IntervalSeconds,
		UtilizationPercent: pct,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if err := c.DefaultLoad().Validate(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if c.Load.CoreFraction <= 0 || c.Load.CoreFraction > 1 {
		return fmt.Errorf("load: core_fraction must be in (0,1], got %v", c.Load.CoreFraction)
	}
	if c.Load.CPUCount < 0 {
		return fmt.Errorf("load: cpu_count must be non-negative, got %d", c.Load.CPUCount)
	}
	if c.Load.GracePeriod < 0 {
		return fmt.Errorf("load: grace_period must be positive, got %s", c.Load.GracePeriod)
	}

	if c.HTTP.ControlRateLimit < 0 {
		return fmt.Errorf("http: control_rate_limit must be non-negative, got %v", c.HTTP.ControlRateLimit)
	}

	if c.Metrics.Enabled && c.Metrics.Path[0] != '/' {
		return fmt.Errorf("metrics: path must start with '/', got %q", c.Metrics.Path)
	}

	if c.GRPC != nil && c.GRPC.Enabled && c.GRPC.Listen == c.Listen {
		return fmt.Errorf("grpc: listen address %s collides with the HTTP listener", c.GRPC.Listen)
	}

	if c.Tracing != nil && c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing: endpoint is required when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing: sample_rate must be in [0,1], got %v", c.Tracing.SampleRate)
		}
	}

	if c.Logging != nil {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
		if !validLevels[c.Logging.Level] {
			return fmt.Errorf("invalid log level: %s", c.Logging.Level)
		}
		if c.Logging.Format != "text" && c.Logging.Format != "json" {
			return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", c.Logging.Format)
		}
	}

	return nil
}
