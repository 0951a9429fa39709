package load

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidConfig is returned when a load configuration is out of range
	ErrInvalidConfig = errors.New("invalid load config")

	// ErrResourceExhausted is returned when a worker could not be created
	ErrResourceExhausted = errors.New("load worker creation failed")

	// ErrTerminationTimeout is reported when a worker ignores cancellation
	// for longer than the grace period
	ErrTerminationTimeout = errors.New("load worker termination timeout")

	// ErrManagerClosed is returned when starting load on a closed manager
	ErrManagerClosed = errors.New("load manager is closed")
)

// Window is the duty-cycle window length
const Window = time.Second

const (
	// DefaultIntervalSeconds is how long a pool runs when no interval is given
	DefaultIntervalSeconds = 300

	// DefaultUtilizationPercent is the per-worker CPU target
	DefaultUtilizationPercent = 90

	// DefaultCoreFraction leaves headroom for the host
	DefaultCoreFraction = 0.9

	// DefaultGracePeriod bounds how long Stop waits for each pool
	DefaultGracePeriod = 5 * time.Second
)

// LoadConfig describes a single load run
type LoadConfig struct {
	// IntervalSeconds is how long the workers run before expiring
	IntervalSeconds int `json:"interval_seconds" yaml:"interval_seconds"`

	// UtilizationPercent is the busy share of each window (0-100)
	UtilizationPercent int `json:"utilization_percent" yaml:"utilization_percent"`
}

// DefaultLoadConfig returns the 300s / 90% configuration
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{
		IntervalSeconds:    DefaultIntervalSeconds,
		UtilizationPercent: DefaultUtilizationPercent,
	}
}

// Validate checks the configuration ranges
func (c LoadConfig) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: interval_seconds must be positive, got %d", ErrInvalidConfig, c.IntervalSeconds)
	}
	if c.UtilizationPercent < 0 || c.UtilizationPercent > 100 {
		return fmt.Errorf("%w: utilization_percent must be in [0,100], got %d", ErrInvalidConfig, c.UtilizationPercent)
	}
	return nil
}

// Interval returns the run duration
func (c LoadConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// BusyPerWindow returns the compute share of one window
func (c LoadConfig) BusyPerWindow() time.Duration {
	return Window * time.Duration(c.UtilizationPercent) / 100
}

// WorkerCount returns floor(cpus * fraction), never less than one.
// A fraction outside (0,1] falls back to DefaultCoreFraction.
func WorkerCount(cpus int, fraction float64) int {
	if cpus < 1 {
		cpus = 1
	}
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultCoreFraction
	}
	// epsilon keeps 0.9*N from landing just under an integer
	n := int(math.Floor(float64(cpus)*fraction + 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}
