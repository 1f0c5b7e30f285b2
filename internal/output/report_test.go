package output_test

import (
	"strings"
	"testing"
	"time"

	"github.com/quarrydb/quarry/internal/aggregator"
	"github.com/quarrydb/quarry/internal/output"
	"github.com/quarrydb/quarry/internal/workload"
)

func TestPrintReport(t *testing.T) {
	var sb strings.Builder
	output.PrintReport(&sb, aggregator.Report{
		Interval: 12,
		Throughput: aggregator.Throughput{
			Committed: 3400,
			Instant:   200,
			Smoothed:  140.5,
			Average:   150,
		},
		Dump:    "database 1: committed=3400 aborted=12\n",
		Flushed: true,
	}, workload.Result{
		Committed: 3400,
		Aborted:   12,
		Queries:   830,
		Duration:  12 * time.Second,
	})

	got := sb.String()
	for _, want := range []string{
		"Intervals completed:  12",
		"Committed (engine):   3400",
		"Moving average:     140.50",
		"Long-run average:   150.00",
		"database 1: committed=3400 aborted=12",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Warning") {
		t.Errorf("unexpected flush warning in report:\n%s", got)
	}
}

func TestPrintReportFlushWarning(t *testing.T) {
	var sb strings.Builder
	output.PrintReport(&sb, aggregator.Report{Interval: 1, Flushed: false}, workload.Result{})

	if !strings.Contains(sb.String(), "flush failed") {
		t.Errorf("report missing flush warning:\n%s", sb.String())
	}
}
