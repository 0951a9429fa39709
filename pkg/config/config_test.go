package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/load"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen :8080, got %s", cfg.Listen)
	}
	if got := cfg.DefaultLoad(); got != load.DefaultLoadConfig() {
		t.Errorf("expected default load %+v, got %+v", load.DefaultLoadConfig(), got)
	}
	if cfg.Load.CoreFraction != 0.9 {
		t.Errorf("expected core fraction 0.9, got %v", cfg.Load.CoreFraction)
	}
	if cfg.Load.GracePeriod != 5*time.Second {
		t.Errorf("expected grace period 5s, got %s", cfg.Load.GracePeriod)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected metrics path /metrics, got %s", cfg.Metrics.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	yamlData := `
listen: ":80"
hostname: demo-vm
load:
  interval_seconds: 60
  utilization_percent: 0
  core_fraction: 0.5
  grace_period: 2s
http:
  enable_http2: true
  access_log: true
metrics:
  enabled: true
grpc:
  enabled: true
tracing:
  enabled: true
  endpoint: http://localhost:14268/api/traces
logging:
  format: json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlData), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Listen != ":80" || cfg.Hostname != "demo-vm" {
		t.Errorf("unexpected listen/hostname: %s / %s", cfg.Listen, cfg.Hostname)
	}

	// an explicit 0% must survive defaulting
	want := load.LoadConfig{IntervalSeconds: 60, UtilizationPercent: 0}
	if got := cfg.DefaultLoad(); got != want {
		t.Errorf("expected load %+v, got %+v", want, got)
	}
	if cfg.Load.GracePeriod != 2*time.Second {
		t.Errorf("expected grace period 2s, got %s", cfg.Load.GracePeriod)
	}
	if !cfg.HTTP.EnableHTTP2 || !cfg.HTTP.AccessLog {
		t.Error("expected http2 and access log enabled")
	}
	if cfg.GRPC.Listen != ":9090" || cfg.GRPC.ServiceName != "vmsim" {
		t.Errorf("unexpected grpc defaults: %+v", cfg.GRPC)
	}
	if cfg.Tracing.ServiceName != "vmsim" || cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("unexpected tracing defaults: %+v", cfg.Tracing)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("load: [unterminated")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "utilization above 100",
			yaml:    "load:\n  utilization_percent: 120\n",
			wantErr: "utilization_percent",
		},
		{
			name:    "negative interval",
			yaml:    "load:\n  interval_seconds: -1\n",
			wantErr: "interval_seconds",
		},
		{
			name:    "core fraction above 1",
			yaml:    "load:\n  core_fraction: 1.5\n",
			wantErr: "core_fraction",
		},
		{
			name:    "tracing without endpoint",
			yaml:    "tracing:\n  enabled: true\n",
			wantErr: "endpoint",
		},
		{
			name:    "bad log format",
			yaml:    "logging:\n  format: xml\n",
			wantErr: "log format",
		},
		{
			name:    "negative control rate",
			yaml:    "http:\n  control_rate_limit: -1\n",
			wantErr: "control_rate_limit",
		},
		{
			name:    "grpc on http port",
			yaml:    "listen: \":9090\"\ngrpc:\n  enabled: true\n",
			wantErr: "collides",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateLoadWrapsInvalidConfig(t *testing.T) {
	cfg, err := Parse([]byte("load:\n  utilization_percent: -5\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, load.ErrInvalidConfig) {
		t.Errorf("expected load.ErrInvalidConfig, got %v", err)
	}
}

func TestControlBurstDefault(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  control_rate_limit: 2\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.HTTP.ControlBurst != 5 {
		t.Errorf("expected default burst 5, got %d", cfg.HTTP.ControlBurst)
	}

	if Default().HTTP.ControlBurst != 0 {
		t.Error("burst should stay unset when rate limiting is off")
	}
}
