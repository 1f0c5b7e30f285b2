// Package aggregator owns the background statistics loop: once per
// interval it merges every live metric context into a snapshot, derives
// throughput, flushes the snapshot to the sink in one transaction and
// optionally appends a text summary to the stats log.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quarrydb/quarry/internal/sink"
	"github.com/quarrydb/quarry/internal/stats"
	"github.com/quarrydb/quarry/internal/statslog"
)

// Aggregation failures log at most this often.
const failureLogInterval = time.Minute

type state int

const (
	stateStopped state = iota
	stateRunning
	stateShuttingDown
)

// Options configure an Engine.
type Options struct {
	Interval   time.Duration // aggregation interval, must be > 0
	Alpha      float64       // EMA smoothing factor, (0,1]
	LogEvery   int           // stats log cadence in intervals
	Registry   *stats.Registry
	Sink       sink.Sink
	Logger     *zap.Logger           // optional
	Tracer     trace.Tracer          // optional
	StatsLog   *statslog.Writer      // optional
	Registerer prometheus.Registerer // optional self-metrics registration
	Now        func() time.Time      // optional injection for tests
	RunID      ulid.ULID             // optional, generated when zero
}

func (o *Options) normalize() error {
	if o.Interval <= 0 {
		return fmt.Errorf("aggregator: interval must be positive, got %s", o.Interval)
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		return fmt.Errorf("aggregator: alpha must be in (0, 1], got %g", o.Alpha)
	}
	if o.LogEvery <= 0 {
		o.LogEvery = 10
	}
	if o.Registry == nil {
		return fmt.Errorf("aggregator: registry is required")
	}
	if o.Sink == nil {
		return fmt.Errorf("aggregator: sink is required")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("quarry")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.RunID == (ulid.ULID{}) {
		o.RunID = ulid.Make()
	}
	return nil
}

// Report is the engine's view of its most recent completed cycle.
type Report struct {
	Interval   int64
	Throughput Throughput
	Dump       string
	Flushed    bool
}

// Engine runs the aggregation cycle on a dedicated goroutine. The
// lifecycle is idempotent: Start while running and Stop while stopped
// are no-ops, and Stop blocks until the loop has fully exited.
type Engine struct {
	opt       Options
	merger    *stats.Merger
	estimator *ThroughputEstimator
	writer    *PersistenceWriter
	runID     ulid.ULID

	selfID  stats.WorkerID
	selfCtx *stats.MetricsContext

	warnLimiter *rate.Limiter
	metrics     *engineMetrics

	mu            sync.Mutex
	st            state
	cancel        context.CancelFunc
	done          chan struct{}
	intervalCount int64
	lastReport    *Report
}

// New validates the options and wires the engine. The engine registers
// a metric context under its own identity so any bookkeeping reads or
// writes it performs are attributable, and excludes exactly that
// identity from every snapshot it builds.
func New(opt Options) (*Engine, error) {
	if err := opt.normalize(); err != nil {
		return nil, err
	}

	e := &Engine{
		opt:         opt,
		merger:      stats.NewMerger(opt.Registry),
		estimator:   NewThroughputEstimator(opt.Alpha, opt.Interval),
		writer:      NewPersistenceWriter(opt.Sink, opt.Logger),
		runID:       opt.RunID,
		selfID:      stats.NextWorkerID(),
		selfCtx:     stats.NewMetricsContext(),
		warnLimiter: rate.NewLimiter(rate.Every(failureLogInterval), 1),
		metrics:     newEngineMetrics(opt.Registry, opt.Registerer),
	}
	opt.Registry.Register(e.selfID, e.selfCtx)
	return e, nil
}

// RunID identifies this engine instance in logs and the stats log.
func (e *Engine) RunID() ulid.ULID { return e.runID }

// SelfContext is the metric context of the aggregation goroutine
// itself. It exists so the engine's own catalog activity has somewhere
// to go; it is excluded from every snapshot.
func (e *Engine) SelfContext() *stats.MetricsContext { return e.selfCtx }

// Start launches the background loop. Starting a running engine does
// nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st != stateStopped {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.intervalCount = 0
	e.estimator.Reset()
	e.st = stateRunning

	e.opt.Logger.Info("aggregator started",
		zap.String("run_id", e.runID.String()),
		zap.Duration("interval", e.opt.Interval))
	go e.run(ctx)
}

// Stop cancels the loop and blocks until it has exited. No cycle is
// interrupted mid-flush; a pending one is only prevented from starting.
// Stopping a stopped engine does nothing, and every concurrent caller
// blocks until the loop is gone.
func (e *Engine) Stop() {
	e.mu.Lock()
	switch e.st {
	case stateStopped:
		e.mu.Unlock()
		return
	case stateShuttingDown:
		// Another caller already initiated the shutdown; join the
		// same loop exit.
		done := e.done
		e.mu.Unlock()
		<-done
		return
	}
	e.st = stateShuttingDown
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done

	e.mu.Lock()
	e.st = stateStopped
	e.mu.Unlock()
	e.opt.Logger.Info("aggregator stopped", zap.String("run_id", e.runID.String()))
}

// LastReport returns the most recent completed cycle's summary.
func (e *Engine) LastReport() (Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastReport == nil {
		return Report{}, false
	}
	return *e.lastReport, true
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.opt.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	// The loop context only governs the timed wait between cycles. A
	// cycle that already started runs to completion even when Stop
	// fires mid-flush; Stop's join waits for it.
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	e.intervalCount++
	interval := e.intervalCount
	e.mu.Unlock()

	ctx, span := e.opt.Tracer.Start(ctx, "aggregator.cycle",
		trace.WithAttributes(attribute.Int64("quarry.interval", interval)))
	defer span.End()

	snap := e.merger.BuildSnapshot(e.selfID)
	th := e.estimator.Update(snap, interval)
	dump := snap.String()
	timestamp := e.opt.Now().Unix()

	flushed := true
	if err := e.writer.Flush(ctx, snap, timestamp); err != nil {
		flushed = false
		span.RecordError(err)
		e.metrics.flushFailures.Inc()
		if e.warnLimiter.Allow() {
			e.opt.Logger.Error("interval flush failed, metrics for this interval dropped",
				zap.Int64("interval", interval), zap.Error(err))
		}
	}
	e.metrics.cyclesTotal.Inc()

	if e.opt.StatsLog != nil && interval%int64(e.opt.LogEvery) == 0 {
		if err := e.opt.StatsLog.WriteInterval(interval, dump, th.Smoothed, th.Average, th.Instant); err != nil {
			e.opt.Logger.Warn("stats log write failed", zap.Error(err))
		}
	}

	span.SetAttributes(
		attribute.Int64("quarry.committed", th.Committed),
		attribute.Float64("quarry.throughput.smoothed", th.Smoothed),
		attribute.Bool("quarry.flushed", flushed),
	)
	e.opt.Logger.Debug("aggregation cycle complete",
		zap.Int64("interval", interval),
		zap.Int64("committed", th.Committed),
		zap.Float64("instant", th.Instant),
		zap.Float64("smoothed", th.Smoothed),
		zap.Float64("average", th.Average),
		zap.Bool("flushed", flushed))

	e.mu.Lock()
	e.lastReport = &Report{Interval: interval, Throughput: th, Dump: dump, Flushed: flushed}
	e.mu.Unlock()
}
