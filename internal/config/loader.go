package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional configuration file
// into a Config. Flags that were set explicitly win over file values,
// which win over defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	cfg := Default()

	configPath := flagSet.Lookup("config").Value.String()
	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		if err := cfgViper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", configPath, err)
		}
		cfg.ConfigFile = configPath
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlagOverrides copies every explicitly set flag into cfg.
func applyFlagOverrides(cfg *Config, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "interval":
			cfg.Interval, err = flags.GetDuration(f.Name)
		case "log-every":
			cfg.LogEvery, err = flags.GetInt(f.Name)
		case "alpha":
			cfg.Alpha, err = flags.GetFloat64(f.Name)
		case "stats-log":
			cfg.StatsLog, err = flags.GetString(f.Name)
		case "sink-driver":
			var driver string
			driver, err = flags.GetString(f.Name)
			cfg.Sink.Driver = SinkDriver(driver)
		case "sink-path":
			cfg.Sink.Path, err = flags.GetString(f.Name)
		case "otlp-endpoint":
			cfg.Tracing.Endpoint, err = flags.GetString(f.Name)
		case "otlp-protocol":
			cfg.Tracing.Protocol, err = flags.GetString(f.Name)
		case "trace-sample-rate":
			cfg.Tracing.SampleRate, err = flags.GetFloat64(f.Name)
		case "otlp-insecure":
			cfg.Tracing.Insecure, err = flags.GetBool(f.Name)
		case "workers":
			cfg.Workload.Workers, err = flags.GetInt(f.Name)
		case "rate":
			cfg.Workload.Rate, err = flags.GetInt(f.Name)
		case "databases":
			cfg.Workload.Databases, err = flags.GetInt(f.Name)
		case "tables":
			cfg.Workload.Tables, err = flags.GetInt(f.Name)
		case "indexes":
			cfg.Workload.Indexes, err = flags.GetInt(f.Name)
		case "abort-percent":
			cfg.Workload.AbortPercent, err = flags.GetInt(f.Name)
		case "duration":
			cfg.Workload.Duration, err = flags.GetDuration(f.Name)
		case "seed":
			cfg.Workload.Seed, err = flags.GetInt64(f.Name)
		case "verbose":
			cfg.Verbose, err = flags.GetBool(f.Name)
		}
	})
	return err
}
