package stats_test

import (
	"sync"
	"testing"

	"github.com/quarrydb/quarry/internal/stats"
)

func TestRegisterDuplicatePanics(t *testing.T) {
	r := stats.NewRegistry()
	id := stats.NextWorkerID()
	r.Register(id, stats.NewMetricsContext())

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate Register")
		}
	}()
	r.Register(id, stats.NewMetricsContext())
}

func TestUnregisterIdempotent(t *testing.T) {
	r := stats.NewRegistry()
	id := stats.NextWorkerID()
	ctx := stats.NewMetricsContext()
	ctx.RecordTxnCommit(1)
	r.Register(id, ctx)

	r.Unregister(id)
	r.Unregister(id) // second call must be a no-op

	if got := r.LiveWorkers(); got != 0 {
		t.Fatalf("LiveWorkers = %d, want 0", got)
	}

	// History still holds exactly one commit, not two.
	snap := stats.NewMerger(r).BuildSnapshot(0)
	if got := snap.TotalCommitted(); got != 1 {
		t.Errorf("TotalCommitted = %d, want 1", got)
	}
}

func TestUnregisterUnknownIsNoOp(t *testing.T) {
	r := stats.NewRegistry()
	r.Unregister(stats.WorkerID(9999))
	if got := r.LiveWorkers(); got != 0 {
		t.Errorf("LiveWorkers = %d, want 0", got)
	}
}

func TestLiveWorkerCount(t *testing.T) {
	r := stats.NewRegistry()

	ids := make([]stats.WorkerID, 3)
	for i := range ids {
		ids[i] = stats.NextWorkerID()
		r.Register(ids[i], stats.NewMetricsContext())
	}
	if got := r.LiveWorkers(); got != 3 {
		t.Fatalf("LiveWorkers = %d, want 3", got)
	}

	r.Unregister(ids[1])
	if got := r.LiveWorkers(); got != 2 {
		t.Errorf("LiveWorkers = %d, want 2", got)
	}
}

// TestNoLossAcrossUnregister checks that counts survive a worker
// terminating between snapshots: every increment ever applied shows up
// in later snapshots exactly once.
func TestNoLossAcrossUnregister(t *testing.T) {
	r := stats.NewRegistry()
	merger := stats.NewMerger(r)

	const workers = 5
	const commitsPerWorker = 100

	ids := make([]stats.WorkerID, workers)
	for i := range ids {
		ids[i] = stats.NextWorkerID()
		ctx := stats.NewMetricsContext()
		for c := 0; c < commitsPerWorker; c++ {
			ctx.RecordTxnCommit(1)
		}
		r.Register(ids[i], ctx)
	}

	// Interleave snapshots with unregistrations.
	for i, id := range ids {
		snap := merger.BuildSnapshot(0)
		if got := snap.TotalCommitted(); got != workers*commitsPerWorker {
			t.Fatalf("snapshot %d: TotalCommitted = %d, want %d", i, got, workers*commitsPerWorker)
		}
		r.Unregister(id)
	}

	// All workers gone; history alone still carries every commit.
	snap := merger.BuildSnapshot(0)
	if got := snap.TotalCommitted(); got != workers*commitsPerWorker {
		t.Errorf("after all unregister: TotalCommitted = %d, want %d", got, workers*commitsPerWorker)
	}
}

// TestNoLossConcurrent registers, increments and unregisters workers
// concurrently with snapshot building and checks the final total.
func TestNoLossConcurrent(t *testing.T) {
	r := stats.NewRegistry()
	merger := stats.NewMerger(r)

	const workers = 8
	const commitsPerWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			id := stats.NextWorkerID()
			ctx := stats.NewMetricsContext()
			r.Register(id, ctx)
			for c := 0; c < commitsPerWorker; c++ {
				ctx.RecordTxnCommit(1)
			}
			r.Unregister(id)
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			merger.BuildSnapshot(0)
		}
	}()

	wg.Wait()
	<-done

	snap := merger.BuildSnapshot(0)
	if got := snap.TotalCommitted(); got != workers*commitsPerWorker {
		t.Errorf("TotalCommitted = %d, want %d", got, workers*commitsPerWorker)
	}
}
