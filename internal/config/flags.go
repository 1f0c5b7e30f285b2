package config

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "quarrystats",
		Short:         "Runtime statistics aggregation daemon",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Engine flags
	flags.DurationP("interval", "i", time.Second, "Aggregation interval (must be positive)")
	flags.Int("log-every", 10, "Write the stats log every N intervals")
	flags.Float64("alpha", 0.4, "Throughput EMA smoothing factor in (0, 1]")
	flags.String("stats-log", "", "Path of the append-only stats log (empty disables)")

	// Sink flags
	flags.String("sink-driver", string(SinkDriverMemory), "Metric sink: 'sqlite' or 'memory'")
	flags.String("sink-path", "", "SQLite database path for the sqlite sink")

	// Tracing flags
	flags.String("otlp-endpoint", "", "OTLP exporter endpoint (empty disables tracing)")
	flags.String("otlp-protocol", "grpc", "OTLP transport: 'grpc' or 'http'")
	flags.Float64("trace-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("otlp-insecure", false, "Disable TLS for the OTLP exporter")

	// Workload flags
	flags.IntP("workers", "w", 4, "Simulated worker goroutines")
	flags.IntP("rate", "r", 200, "Simulated transactions per second (0 means unpaced)")
	flags.Int("databases", 1, "Databases in the simulated catalog")
	flags.Int("tables", 4, "Tables per simulated database")
	flags.Int("indexes", 2, "Indexes per simulated table")
	flags.Int("abort-percent", 5, "Share of simulated transactions that abort")
	flags.DurationP("duration", "d", 0, "How long to run the workload (0 runs until interrupted)")
	flags.Int64("seed", 0, "Workload random seed (0 derives one from the clock)")

	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
}

func displayHelp(cmd *cobra.Command) {
	_ = cmd.Help()
}
