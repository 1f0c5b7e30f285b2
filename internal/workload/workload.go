// Package workload drives a simulated transactional workload against
// the stats registry so the daemon has something to aggregate. Each
// simulated worker registers its own metric context, mutates it the way
// a real executor thread would and unregisters on shutdown.
package workload

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/quarrydb/quarry/internal/stats"
)

var queryNames = []string{
	"select_account",
	"update_balance",
	"insert_order",
	"delete_session",
}

// Options configure the Simulator.
type Options struct {
	Workers      int
	Rate         int // transactions per second across all workers, 0 means unpaced
	Databases    int
	Tables       int // per database
	Indexes      int // per table
	AbortPercent int
	Seed         int64

	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Databases <= 0 {
		o.Databases = 1
	}
	if o.Tables <= 0 {
		o.Tables = 1
	}
	if o.Indexes < 0 {
		o.Indexes = 0
	}
	if o.AbortPercent < 0 {
		o.AbortPercent = 0
	}
	if o.AbortPercent > 100 {
		o.AbortPercent = 100
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// Result captures the workload's own ground-truth tally, used to check
// the engine's no-loss property from the outside.
type Result struct {
	Committed int64
	Aborted   int64
	Queries   int64
	Duration  time.Duration
}

// Simulator runs simulated worker goroutines until the context ends.
type Simulator struct {
	opt      Options
	registry *stats.Registry
}

func New(registry *stats.Registry, opt Options) *Simulator {
	opt.normalize()
	return &Simulator{opt: opt, registry: registry}
}

// Run blocks until ctx is done and every worker has unregistered.
func (s *Simulator) Run(ctx context.Context) Result {
	start := time.Now()
	limiter := s.opt.LimiterFactory(s.opt.Rate)

	var committed, aborted, queries atomic.Int64

	var wg sync.WaitGroup
	wg.Add(s.opt.Workers)
	for i := 0; i < s.opt.Workers; i++ {
		go func(worker int) {
			defer wg.Done()

			id := stats.NextWorkerID()
			mctx := stats.NewMetricsContext()
			s.registry.Register(id, mctx)
			defer s.registry.Unregister(id)

			rnd := rand.New(rand.NewSource(s.opt.Seed + int64(worker)))
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				s.transact(rnd, mctx, &committed, &aborted, &queries)
			}
		}(i)
	}
	wg.Wait()

	return Result{
		Committed: committed.Load(),
		Aborted:   aborted.Load(),
		Queries:   queries.Load(),
		Duration:  time.Since(start),
	}
}

// transact simulates one transaction: a few table accesses, an index
// probe, sometimes a completed query record, then a commit or abort.
func (s *Simulator) transact(rnd *rand.Rand, mctx *stats.MetricsContext, committed, aborted, queries *atomic.Int64) {
	db := stats.DatabaseID(1 + rnd.Intn(s.opt.Databases))
	table := stats.TableID(1 + rnd.Intn(s.opt.Tables))
	key := stats.TableKey{Database: db, Table: table}

	delta := stats.AccessCounts{Reads: int64(1 + rnd.Intn(8))}
	switch rnd.Intn(3) {
	case 0:
		delta.Inserts = 1
	case 1:
		delta.Updates = 1
	case 2:
		delta.Deletes = 1
	}
	mctx.AddTableAccess(key, delta)

	if s.opt.Indexes > 0 {
		index := stats.IndexID(1 + rnd.Intn(s.opt.Indexes))
		mctx.AddIndexAccess(stats.IndexKey{Database: db, Table: table, Index: index}, stats.IndexAccessCounts{
			Reads:   1,
			Deletes: delta.Deletes,
			Inserts: delta.Inserts,
		})
	}

	if rnd.Intn(4) == 0 {
		limit := 1 + rnd.Intn(100)
		mctx.RecordQuery(&stats.QueryMetric{
			Name:     queryNames[rnd.Intn(len(queryNames))],
			Database: db,
			Params: &stats.QueryParams{
				Count:   1,
				Types:   []byte{0x17}, // int4 wire type
				Formats: []byte{0x00},
				Values:  []byte(fmt.Sprintf(`{"limit":%d}`, limit)),
			},
			Access:    delta,
			Latency:   time.Duration(200+rnd.Intn(15_000)) * time.Microsecond,
			CPUSystem: time.Duration(20+rnd.Intn(300)) * time.Microsecond,
			CPUUser:   time.Duration(50+rnd.Intn(900)) * time.Microsecond,
		})
		queries.Add(1)
	}

	if rnd.Intn(100) < s.opt.AbortPercent {
		mctx.RecordTxnAbort(db)
		aborted.Add(1)
		return
	}
	mctx.RecordTxnCommit(db)
	committed.Add(1)
}
