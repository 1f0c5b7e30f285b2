// Package statslog appends the periodic plain-text stats summary to an
// external log file. Writes are best effort: the aggregation loop
// treats any failure here as a warning, never as a reason to abort an
// interval.
package statslog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
)

// Writer owns the append-only stats log. An exclusive file lock keeps
// two engine instances from interleaving lines in the same file.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
	lock *flock.Flock
}

// Open acquires the log's file lock and opens it for appending. A run
// header with the engine run id marks where this process started
// writing.
func Open(path string, runID ulid.ULID) (*Writer, error) {
	lock := flock.New(path + ".lock")
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("statslog: lock %s: %w", path, err)
	}
	if !held {
		return nil, fmt.Errorf("statslog: %s is locked by another instance", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("statslog: open %s: %w", path, err)
	}

	w := &Writer{path: path, f: f, lock: lock}
	if _, err := fmt.Fprintf(f, "# run %s started %s\n", runID, time.Now().Format(time.RFC3339)); err != nil {
		w.Close()
		return nil, fmt.Errorf("statslog: write header: %w", err)
	}
	return w, nil
}

// WriteInterval appends one interval's summary: the interval number,
// the snapshot dump and the three throughput figures.
func (w *Writer) WriteInterval(interval int64, dump string, smoothed, average, instant float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := fmt.Fprintf(w.f,
		"At interval: %d\n%sWeighted avg. throughput=%f\nAverage throughput=%f\nCurrent throughput=%f\n",
		interval, dump, smoothed, average, instant)
	if err != nil {
		return fmt.Errorf("statslog: write interval %d: %w", interval, err)
	}
	return nil
}

// Close closes the log and releases the file lock.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.f.Close()
	if unlockErr := w.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}
