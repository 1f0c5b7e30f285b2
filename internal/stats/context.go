package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// WorkerID identifies one registered worker goroutine.
type WorkerID uint64

// DatabaseID, TableID and IndexID identify catalog objects in the
// server the engine observes.
type (
	DatabaseID uint32
	TableID    uint32
	IndexID    uint32
)

// TableKey addresses one table's counters within a context or snapshot.
type TableKey struct {
	Database DatabaseID
	Table    TableID
}

// IndexKey addresses one index's counters.
type IndexKey struct {
	Database DatabaseID
	Table    TableID
	Index    IndexID
}

// TxnCounts holds database-level transaction outcome counters.
type TxnCounts struct {
	Committed int64
	Aborted   int64
}

// AccessCounts holds table-level access counters.
type AccessCounts struct {
	Reads   int64
	Updates int64
	Deletes int64
	Inserts int64
}

func (a *AccessCounts) add(d AccessCounts) {
	a.Reads += d.Reads
	a.Updates += d.Updates
	a.Deletes += d.Deletes
	a.Inserts += d.Inserts
}

// IndexAccessCounts holds index-level access counters. Indexes have no
// update path; an update is a delete followed by an insert.
type IndexAccessCounts struct {
	Reads   int64
	Deletes int64
	Inserts int64
}

func (a *IndexAccessCounts) add(d IndexAccessCounts) {
	a.Reads += d.Reads
	a.Deletes += d.Deletes
	a.Inserts += d.Inserts
}

// QueryParams carries the bound-parameter buffers captured when a
// prepared query finished. Values is serialized JSON; Types and Formats
// are opaque wire buffers. Count > 0 requires non-nil buffers.
type QueryParams struct {
	Count   int
	Types   []byte
	Formats []byte
	Values  []byte
}

// QueryMetric is one completed query's metric record. Latency is the
// first observed execution latency for the query, not an average.
type QueryMetric struct {
	Name      string
	Database  DatabaseID
	Params    *QueryParams
	Access    AccessCounts
	Latency   time.Duration
	CPUSystem time.Duration
	CPUUser   time.Duration
}

// Latency histogram bounds: 1µs up to 60s with 3 significant figures.
const (
	latencyLowest  = 1
	latencyHighest = 60_000_000
	latencySigFigs = 3
)

func newLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(latencyLowest, latencyHighest, latencySigFigs)
}

// MetricsContext is one worker's counter bundle. The owning worker
// mutates it through the Record/Add methods; the aggregator folds it
// into a snapshot via merge. All access goes through the context mutex,
// which is uncontended on the worker's path except for the one merge
// per aggregation interval.
type MetricsContext struct {
	mu        sync.Mutex
	databases map[DatabaseID]*TxnCounts
	tables    map[TableKey]*AccessCounts
	indexes   map[IndexKey]*IndexAccessCounts
	completed []*QueryMetric
	latency   *hdrhistogram.Histogram
}

func NewMetricsContext() *MetricsContext {
	return &MetricsContext{
		databases: make(map[DatabaseID]*TxnCounts),
		tables:    make(map[TableKey]*AccessCounts),
		indexes:   make(map[IndexKey]*IndexAccessCounts),
		latency:   newLatencyHistogram(),
	}
}

// RecordTxnCommit counts one committed transaction against db.
func (c *MetricsContext) RecordTxnCommit(db DatabaseID) {
	c.mu.Lock()
	c.txnCounts(db).Committed++
	c.mu.Unlock()
}

// RecordTxnAbort counts one aborted transaction against db.
func (c *MetricsContext) RecordTxnAbort(db DatabaseID) {
	c.mu.Lock()
	c.txnCounts(db).Aborted++
	c.mu.Unlock()
}

// AddTableAccess adds delta to the counters of one table.
func (c *MetricsContext) AddTableAccess(key TableKey, delta AccessCounts) {
	c.mu.Lock()
	c.tableCounts(key).add(delta)
	c.mu.Unlock()
}

// AddIndexAccess adds delta to the counters of one index.
func (c *MetricsContext) AddIndexAccess(key IndexKey, delta IndexAccessCounts) {
	c.mu.Lock()
	c.indexCounts(key).add(delta)
	c.mu.Unlock()
}

// RecordQuery appends a completed query record to the context's queue
// and samples its latency into the histogram. The record is consumed by
// the next snapshot merge.
func (c *MetricsContext) RecordQuery(q *QueryMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completed = append(c.completed, q)
	if q.Latency > 0 {
		us := q.Latency.Microseconds()
		if us < latencyLowest {
			us = latencyLowest
		}
		if us > latencyHighest {
			us = latencyHighest
		}
		_ = c.latency.RecordValue(us)
	}
}

func (c *MetricsContext) txnCounts(db DatabaseID) *TxnCounts {
	tc, ok := c.databases[db]
	if !ok {
		tc = &TxnCounts{}
		c.databases[db] = tc
	}
	return tc
}

func (c *MetricsContext) tableCounts(key TableKey) *AccessCounts {
	ac, ok := c.tables[key]
	if !ok {
		ac = &AccessCounts{}
		c.tables[key] = ac
	}
	return ac
}

func (c *MetricsContext) indexCounts(key IndexKey) *IndexAccessCounts {
	ac, ok := c.indexes[key]
	if !ok {
		ac = &IndexAccessCounts{}
		c.indexes[key] = ac
	}
	return ac
}

// mergeInto adds the context's counters to s and moves its completed
// query queue into s. Counters stay in place (they are cumulative and
// re-read every interval); the queue is drained exactly once.
func (c *MetricsContext) mergeInto(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for db, tc := range c.databases {
		s.txnCounts(db).Committed += tc.Committed
		s.txnCounts(db).Aborted += tc.Aborted
	}
	for key, ac := range c.tables {
		s.tableCounts(key).add(*ac)
	}
	for key, ac := range c.indexes {
		s.indexCounts(key).add(*ac)
	}
	s.Queries = append(s.Queries, c.completed...)
	c.completed = nil
	s.latency.Merge(c.latency)
}

var workerIDCounter atomic.Uint64

// NextWorkerID allocates a process-unique worker identity.
func NextWorkerID() WorkerID {
	return WorkerID(workerIDCounter.Add(1))
}
