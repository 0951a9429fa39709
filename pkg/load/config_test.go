package load

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LoadConfig
		wantErr bool
	}{
		{"default", DefaultLoadConfig(), false},
		{"zero utilization", LoadConfig{IntervalSeconds: 10, UtilizationPercent: 0}, false},
		{"full utilization", LoadConfig{IntervalSeconds: 10, UtilizationPercent: 100}, false},
		{"zero interval", LoadConfig{IntervalSeconds: 0, UtilizationPercent: 50}, true},
		{"negative interval", LoadConfig{IntervalSeconds: -5, UtilizationPercent: 50}, true},
		{"negative utilization", LoadConfig{IntervalSeconds: 10, UtilizationPercent: -1}, true},
		{"utilization above 100", LoadConfig{IntervalSeconds: 10, UtilizationPercent: 101}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		cpus     int
		fraction float64
		want     int
	}{
		{8, 0.9, 7},
		{1, 0.9, 1},
		{2, 0.9, 1},
		{4, 0.9, 3},
		{10, 0.9, 9},
		{16, 0.9, 14},
		{64, 0.9, 57},
		{8, 1.0, 8},
		{8, 0.5, 4},
		{8, 0, 7},
		{8, 1.5, 7},
		{0, 0.9, 1},
	}

	for _, tt := range tests {
		if got := WorkerCount(tt.cpus, tt.fraction); got != tt.want {
			t.Errorf("WorkerCount(%d, %v) = %d, want %d", tt.cpus, tt.fraction, got, tt.want)
		}
	}
}

func TestBusyPerWindow(t *testing.T) {
	tests := []struct {
		utilization int
		want        time.Duration
	}{
		{0, 0},
		{25, 250 * time.Millisecond},
		{90, 900 * time.Millisecond},
		{100, time.Second},
	}

	for _, tt := range tests {
		cfg := LoadConfig{IntervalSeconds: 1, UtilizationPercent: tt.utilization}
		if got := cfg.BusyPerWindow(); got != tt.want {
			t.Errorf("BusyPerWindow(%d%%) = %s, want %s", tt.utilization, got, tt.want)
		}
	}
}
