// Package output renders the daemon's final human-readable summary.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/quarrydb/quarry/internal/aggregator"
	"github.com/quarrydb/quarry/internal/workload"
)

// PrintReport outputs a human-readable summary of the last aggregation
// cycle and the workload's own tally.
func PrintReport(w io.Writer, report aggregator.Report, result workload.Result) {
	fmt.Fprintln(w, "\n--- Aggregation Summary ---")
	fmt.Fprintf(w, "Intervals completed:  %d\n", report.Interval)
	fmt.Fprintf(w, "Committed (engine):   %d\n", report.Throughput.Committed)
	fmt.Fprintf(w, "Committed (workload): %d\n", result.Committed)
	fmt.Fprintf(w, "Aborted (workload):   %d\n", result.Aborted)
	fmt.Fprintf(w, "Queries recorded:     %d\n", result.Queries)
	fmt.Fprintf(w, "Workload duration:    %s\n", result.Duration.Round(0))
	fmt.Fprintln(w, "\nThroughput (txn/s):")
	fmt.Fprintf(w, "  Current:            %.2f\n", report.Throughput.Instant)
	fmt.Fprintf(w, "  Moving average:     %.2f\n", report.Throughput.Smoothed)
	fmt.Fprintf(w, "  Long-run average:   %.2f\n", report.Throughput.Average)
	if !report.Flushed {
		fmt.Fprintln(w, "\nWarning: the last interval's flush failed; its rows were dropped.")
	}
	if report.Dump != "" {
		fmt.Fprintln(w, "\nLast snapshot:")
		for _, line := range strings.Split(strings.TrimRight(report.Dump, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
