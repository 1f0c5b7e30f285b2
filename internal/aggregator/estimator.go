package aggregator

import (
	"time"

	"github.com/quarrydb/quarry/internal/stats"
)

// Throughput carries the three throughput figures derived from one
// snapshot.
type Throughput struct {
	Committed int64   // cumulative committed transactions in the snapshot
	Instant   float64 // this interval's transactions per second
	Smoothed  float64 // exponential moving average
	Average   float64 // long-run mean since the loop started
}

// ThroughputEstimator turns successive snapshots' committed-transaction
// totals into instantaneous, smoothed and long-run throughput. One
// estimator belongs to one scheduler loop; it is not safe for
// concurrent use.
type ThroughputEstimator struct {
	alpha           float64
	intervalSeconds float64
	prevCommitted   int64
	prevSmoothed    float64
}

// NewThroughputEstimator builds an estimator for a fixed interval
// length. interval must be validated positive by the caller before the
// scheduler starts.
func NewThroughputEstimator(alpha float64, interval time.Duration) *ThroughputEstimator {
	return &ThroughputEstimator{
		alpha:           alpha,
		intervalSeconds: interval.Seconds(),
	}
}

// Reset clears the estimator state for an engine restart.
func (e *ThroughputEstimator) Reset() {
	e.prevCommitted = 0
	e.prevSmoothed = 0
}

// Update consumes the snapshot for the given 1-based interval index.
// The previous committed total advances unconditionally: an empty
// interval reports zero throughput, it is not an error.
func (e *ThroughputEstimator) Update(snap *stats.Snapshot, interval int64) Throughput {
	current := snap.TotalCommitted()
	delta := current - e.prevCommitted

	instant := float64(delta) / e.intervalSeconds

	var smoothed float64
	if interval <= 1 {
		smoothed = instant
	} else {
		smoothed = e.alpha*instant + (1-e.alpha)*e.prevSmoothed
	}

	average := float64(current) / float64(interval) / e.intervalSeconds

	e.prevCommitted = current
	e.prevSmoothed = smoothed

	return Throughput{
		Committed: current,
		Instant:   instant,
		Smoothed:  smoothed,
		Average:   average,
	}
}
