// Package config loads and validates the stats engine configuration
// from YAML/JSON files and command-line flags.
package config

import (
	"fmt"
	"time"
)

type SinkDriver string

const (
	SinkDriverSQLite SinkDriver = "sqlite"
	SinkDriverMemory SinkDriver = "memory"
)

// Config is the full runtime configuration of the quarrystats daemon.
type Config struct {
	Interval time.Duration `mapstructure:"interval"`  // aggregation interval
	LogEvery int           `mapstructure:"log_every"` // stats log cadence, in intervals
	Alpha    float64       `mapstructure:"alpha"`     // EMA smoothing factor
	StatsLog string        `mapstructure:"stats_log"` // auxiliary log path, empty disables

	Sink     SinkConfig     `mapstructure:"sink"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Workload WorkloadConfig `mapstructure:"workload"`

	Verbose    bool   `mapstructure:"verbose"`
	ConfigFile string `mapstructure:"-"`
}

type SinkConfig struct {
	Driver SinkDriver `mapstructure:"driver"`
	Path   string     `mapstructure:"path"` // sqlite file path
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool { return t.Endpoint != "" }

// WorkloadConfig shapes the simulated transactional workload the demo
// daemon runs against the engine.
type WorkloadConfig struct {
	Workers      int           `mapstructure:"workers"`
	Rate         int           `mapstructure:"rate"` // transactions per second, 0 means unpaced
	Databases    int           `mapstructure:"databases"`
	Tables       int           `mapstructure:"tables"`  // per database
	Indexes      int           `mapstructure:"indexes"` // per table
	AbortPercent int           `mapstructure:"abort_percent"`
	Duration     time.Duration `mapstructure:"duration"` // 0 runs until signal
	Seed         int64         `mapstructure:"seed"`
}

// Default returns the configuration the daemon starts from before any
// file or flag overrides.
func Default() *Config {
	return &Config{
		Interval: time.Second,
		LogEvery: 10,
		Alpha:    0.4,
		Sink:     SinkConfig{Driver: SinkDriverMemory},
		Tracing:  TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		Workload: WorkloadConfig{
			Workers:      4,
			Rate:         200,
			Databases:    1,
			Tables:       4,
			Indexes:      2,
			AbortPercent: 5,
		},
	}
}

// Validate rejects configurations the engine must not start with.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("config: aggregation interval must be positive, got %s", c.Interval)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("config: alpha must be in (0, 1], got %g", c.Alpha)
	}
	if c.LogEvery <= 0 {
		return fmt.Errorf("config: log_every must be at least 1, got %d", c.LogEvery)
	}
	switch c.Sink.Driver {
	case SinkDriverMemory:
	case SinkDriverSQLite:
		if c.Sink.Path == "" {
			return fmt.Errorf("config: sqlite sink requires a path")
		}
	default:
		return fmt.Errorf("config: unknown sink driver %q", c.Sink.Driver)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("config: tracing sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate)
	}
	switch c.Tracing.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("config: tracing protocol must be grpc or http, got %q", c.Tracing.Protocol)
	}
	if c.Workload.Workers < 0 || c.Workload.Rate < 0 {
		return fmt.Errorf("config: workload workers and rate must not be negative")
	}
	if c.Workload.Workers > 0 {
		if c.Workload.Databases <= 0 || c.Workload.Tables <= 0 {
			return fmt.Errorf("config: workload needs at least one database and one table")
		}
		if c.Workload.AbortPercent < 0 || c.Workload.AbortPercent > 100 {
			return fmt.Errorf("config: abort_percent must be within 0-100, got %d", c.Workload.AbortPercent)
		}
	}
	return nil
}
