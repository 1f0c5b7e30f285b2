// Package stats implements the per-worker metric contexts and the
// thread-safe registry the aggregation engine reads from.
//
// Each worker owns one [MetricsContext] and mutates it through the
// increment methods; the aggregator only ever sees a context through
// [Registry] under the registry lock. When a worker unregisters, its
// final counts are folded into the registry's history accumulator so no
// metric is lost mid-interval.
//
// # Snapshots
//
// A [Snapshot] is the union of every live context plus the history
// accumulator at one instant. [Merger] owns a single reusable Snapshot
// and rebuilds it once per aggregation cycle:
//
//	merger := stats.NewMerger(registry)
//	snap := merger.BuildSnapshot(selfID)
//
// Counter families merge by addition. Completed query records move,
// they never copy: draining a context's query queue into a snapshot
// consumes it, so each query row is flushed at most once.
package stats
