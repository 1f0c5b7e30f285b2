package aggregator_test

import (
	"math"
	"testing"
	"time"

	"github.com/quarrydb/quarry/internal/aggregator"
	"github.com/quarrydb/quarry/internal/stats"
)

func snapshotWithCommits(t *testing.T, commits int) *stats.Snapshot {
	t.Helper()
	r := stats.NewRegistry()
	ctx := stats.NewMetricsContext()
	for i := 0; i < commits; i++ {
		ctx.RecordTxnCommit(1)
	}
	r.Register(stats.NextWorkerID(), ctx)
	return stats.NewMerger(r).BuildSnapshot(0)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFirstIntervalSmoothedEqualsInstant(t *testing.T) {
	e := aggregator.NewThroughputEstimator(0.4, time.Second)

	th := e.Update(snapshotWithCommits(t, 100), 1)
	if !almostEqual(th.Instant, 100) {
		t.Errorf("Instant = %g, want 100", th.Instant)
	}
	if !almostEqual(th.Smoothed, 100) {
		t.Errorf("Smoothed = %g, want 100 (no prior smoothing value)", th.Smoothed)
	}
	if !almostEqual(th.Average, 100) {
		t.Errorf("Average = %g, want 100", th.Average)
	}
}

func TestSmoothingFormula(t *testing.T) {
	e := aggregator.NewThroughputEstimator(0.4, time.Second)

	// Interval 1: instant 100 seeds the EMA.
	e.Update(snapshotWithCommits(t, 100), 1)

	// Interval 2: 200 more commits -> instant 200.
	th := e.Update(snapshotWithCommits(t, 300), 2)
	if !almostEqual(th.Instant, 200) {
		t.Fatalf("Instant = %g, want 200", th.Instant)
	}
	// 0.4*200 + 0.6*100 = 140.
	if !almostEqual(th.Smoothed, 140) {
		t.Errorf("Smoothed = %g, want 140", th.Smoothed)
	}
	// 300 commits over 2 one-second intervals.
	if !almostEqual(th.Average, 150) {
		t.Errorf("Average = %g, want 150", th.Average)
	}
}

func TestEmptyIntervalAdvancesState(t *testing.T) {
	e := aggregator.NewThroughputEstimator(0.4, time.Second)

	e.Update(snapshotWithCommits(t, 50), 1)

	// Same cumulative total: delta 0 is a valid state, not an error.
	th := e.Update(snapshotWithCommits(t, 50), 2)
	if !almostEqual(th.Instant, 0) {
		t.Errorf("Instant = %g, want 0", th.Instant)
	}
	if !almostEqual(th.Smoothed, 0.6*50) {
		t.Errorf("Smoothed = %g, want %g", th.Smoothed, 0.6*50)
	}

	// prevCommitted advanced: a new commit yields delta 10, not 10+0.
	th = e.Update(snapshotWithCommits(t, 60), 3)
	if !almostEqual(th.Instant, 10) {
		t.Errorf("Instant = %g, want 10", th.Instant)
	}
}

func TestSubSecondInterval(t *testing.T) {
	e := aggregator.NewThroughputEstimator(0.4, 250*time.Millisecond)

	th := e.Update(snapshotWithCommits(t, 25), 1)
	if !almostEqual(th.Instant, 100) {
		t.Errorf("Instant = %g, want 100 txn/s for 25 commits in 250ms", th.Instant)
	}
}

func TestResetClearsState(t *testing.T) {
	e := aggregator.NewThroughputEstimator(0.4, time.Second)
	e.Update(snapshotWithCommits(t, 100), 1)
	e.Reset()

	th := e.Update(snapshotWithCommits(t, 100), 1)
	if !almostEqual(th.Instant, 100) {
		t.Errorf("Instant after reset = %g, want 100", th.Instant)
	}
	if !almostEqual(th.Smoothed, 100) {
		t.Errorf("Smoothed after reset = %g, want 100", th.Smoothed)
	}
}
