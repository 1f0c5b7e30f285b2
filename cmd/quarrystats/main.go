// Command quarrystats runs the statistics aggregation engine against a
// simulated transactional workload and a configurable metric sink.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quarrydb/quarry/internal/aggregator"
	"github.com/quarrydb/quarry/internal/config"
	"github.com/quarrydb/quarry/internal/logging"
	"github.com/quarrydb/quarry/internal/output"
	"github.com/quarrydb/quarry/internal/sink"
	"github.com/quarrydb/quarry/internal/stats"
	"github.com/quarrydb/quarry/internal/statslog"
	"github.com/quarrydb/quarry/internal/tracing"
	"github.com/quarrydb/quarry/internal/workload"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traceProvider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = traceProvider.Shutdown(context.Background()) }()

	metricSink, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	runID := ulid.Make()

	var statsLog *statslog.Writer
	if cfg.StatsLog != "" {
		statsLog, err = statslog.Open(cfg.StatsLog, runID)
		if err != nil {
			// Best effort, same as the flush-time contract: the engine
			// runs without the auxiliary log.
			logger.Warn("stats log unavailable", zap.Error(err))
		} else {
			defer statsLog.Close()
		}
	}

	registry := stats.NewRegistry()
	engine, err := aggregator.New(aggregator.Options{
		Interval:   cfg.Interval,
		Alpha:      cfg.Alpha,
		LogEvery:   cfg.LogEvery,
		Registry:   registry,
		Sink:       metricSink,
		Logger:     logger,
		Tracer:     traceProvider.Tracer(),
		StatsLog:   statsLog,
		Registerer: prometheus.DefaultRegisterer,
		RunID:      runID,
	})
	if err != nil {
		return err
	}

	engine.Start()
	defer engine.Stop()

	result := runWorkload(ctx, cfg, registry)

	engine.Stop()
	if report, ok := engine.LastReport(); ok {
		output.PrintReport(os.Stdout, report, result)
	}
	return nil
}

func runWorkload(ctx context.Context, cfg *config.Config, registry *stats.Registry) workload.Result {
	if cfg.Workload.Workers == 0 {
		<-ctx.Done()
		return workload.Result{}
	}

	wctx := ctx
	if cfg.Workload.Duration > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, cfg.Workload.Duration)
		defer cancel()
	}

	sim := workload.New(registry, workload.Options{
		Workers:      cfg.Workload.Workers,
		Rate:         cfg.Workload.Rate,
		Databases:    cfg.Workload.Databases,
		Tables:       cfg.Workload.Tables,
		Indexes:      cfg.Workload.Indexes,
		AbortPercent: cfg.Workload.AbortPercent,
		Seed:         cfg.Workload.Seed,
	})
	return sim.Run(wctx)
}

// openSink builds the configured sink and seeds its catalog with the
// simulated topology so every flush target exists from interval one.
func openSink(ctx context.Context, cfg *config.Config) (sink.Sink, func(), error) {
	switch cfg.Sink.Driver {
	case config.SinkDriverSQLite:
		s, err := sink.OpenSQLite(cfg.Sink.Path)
		if err != nil {
			return nil, nil, err
		}
		for db := 1; db <= cfg.Workload.Databases; db++ {
			for table := 1; table <= cfg.Workload.Tables; table++ {
				indexes := make([]stats.IndexID, 0, cfg.Workload.Indexes)
				for index := 1; index <= cfg.Workload.Indexes; index++ {
					indexes = append(indexes, stats.IndexID(index))
				}
				if err := s.SeedCatalog(ctx, stats.DatabaseID(db), stats.TableID(table), indexes...); err != nil {
					s.Close()
					return nil, nil, err
				}
			}
		}
		return s, func() { _ = s.Close() }, nil

	case config.SinkDriverMemory:
		m := sink.NewMemory()
		for db := 1; db <= cfg.Workload.Databases; db++ {
			for table := 1; table <= cfg.Workload.Tables; table++ {
				indexes := make([]stats.IndexID, 0, cfg.Workload.Indexes)
				for index := 1; index <= cfg.Workload.Indexes; index++ {
					indexes = append(indexes, stats.IndexID(index))
				}
				m.AddCatalog(stats.DatabaseID(db), stats.TableID(table), indexes...)
			}
		}
		return m, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown sink driver %q", cfg.Sink.Driver)
	}
}
