package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/quarrydb/quarry/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{
			name:    "zero interval",
			mutate:  func(c *config.Config) { c.Interval = 0 },
			wantErr: "interval must be positive",
		},
		{
			name:    "negative interval",
			mutate:  func(c *config.Config) { c.Interval = -time.Second },
			wantErr: "interval must be positive",
		},
		{
			name:    "alpha zero",
			mutate:  func(c *config.Config) { c.Alpha = 0 },
			wantErr: "alpha must be in (0, 1]",
		},
		{
			name:    "alpha above one",
			mutate:  func(c *config.Config) { c.Alpha = 1.01 },
			wantErr: "alpha must be in (0, 1]",
		},
		{
			name:    "log_every zero",
			mutate:  func(c *config.Config) { c.LogEvery = 0 },
			wantErr: "log_every",
		},
		{
			name:    "unknown sink",
			mutate:  func(c *config.Config) { c.Sink.Driver = "etcd" },
			wantErr: "unknown sink driver",
		},
		{
			name: "sqlite without path",
			mutate: func(c *config.Config) {
				c.Sink.Driver = config.SinkDriverSQLite
				c.Sink.Path = ""
			},
			wantErr: "sqlite sink requires a path",
		},
		{
			name:    "bad sample rate",
			mutate:  func(c *config.Config) { c.Tracing.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name:    "bad tracing protocol",
			mutate:  func(c *config.Config) { c.Tracing.Protocol = "udp" },
			wantErr: "protocol",
		},
		{
			name:    "negative workers",
			mutate:  func(c *config.Config) { c.Workload.Workers = -1 },
			wantErr: "must not be negative",
		},
		{
			name:    "abort percent out of range",
			mutate:  func(c *config.Config) { c.Workload.AbortPercent = 150 },
			wantErr: "abort_percent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
