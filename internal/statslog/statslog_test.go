package statslog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/quarrydb/quarry/internal/statslog"
)

func TestWriteIntervalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.log")
	runID := ulid.Make()

	w, err := statslog.Open(path, runID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	dump := "database 1: committed=10 aborted=0\n"
	if err := w.WriteInterval(5, dump, 140.0, 150.0, 200.0); err != nil {
		t.Fatalf("WriteInterval() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		"# run " + runID.String(),
		"At interval: 5",
		"database 1: committed=10 aborted=0",
		"Weighted avg. throughput=140",
		"Average throughput=150",
		"Current throughput=200",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
}

func TestOpenAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.log")

	w, err := statslog.Open(path, ulid.Make())
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	if err := w.WriteInterval(1, "", 1, 1, 1); err != nil {
		t.Fatalf("WriteInterval() error = %v", err)
	}
	w.Close()

	w, err = statslog.Open(path, ulid.Make())
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if err := w.WriteInterval(1, "", 2, 2, 2); err != nil {
		t.Fatalf("WriteInterval() error = %v", err)
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), "At interval: 1"); got != 2 {
		t.Errorf("interval lines = %d, want 2 (second run must append, not truncate)", got)
	}
}

func TestOpenRefusesSecondInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.log")

	w, err := statslog.Open(path, ulid.Make())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer w.Close()

	if _, err := statslog.Open(path, ulid.Make()); err == nil {
		t.Error("second Open() succeeded, want lock conflict")
	}
}
