package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Snapshot is the merged view of all metric contexts at one instant.
// It doubles as the shape of the history accumulator. A Snapshot is
// only ever touched by one goroutine at a time: the aggregator for the
// per-interval snapshot, the registry (under its lock) for history.
type Snapshot struct {
	Databases map[DatabaseID]*TxnCounts
	Tables    map[TableKey]*AccessCounts
	Indexes   map[IndexKey]*IndexAccessCounts
	Queries   []*QueryMetric

	latency *hdrhistogram.Histogram
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Databases: make(map[DatabaseID]*TxnCounts),
		Tables:    make(map[TableKey]*AccessCounts),
		Indexes:   make(map[IndexKey]*IndexAccessCounts),
		latency:   newLatencyHistogram(),
	}
}

// Reset clears the snapshot for reuse. Maps and the histogram keep
// their storage; only their contents go.
func (s *Snapshot) Reset() {
	clear(s.Databases)
	clear(s.Tables)
	clear(s.Indexes)
	s.Queries = s.Queries[:0]
	s.latency.Reset()
}

func (s *Snapshot) txnCounts(db DatabaseID) *TxnCounts {
	tc, ok := s.Databases[db]
	if !ok {
		tc = &TxnCounts{}
		s.Databases[db] = tc
	}
	return tc
}

func (s *Snapshot) tableCounts(key TableKey) *AccessCounts {
	ac, ok := s.Tables[key]
	if !ok {
		ac = &AccessCounts{}
		s.Tables[key] = ac
	}
	return ac
}

func (s *Snapshot) indexCounts(key IndexKey) *IndexAccessCounts {
	ac, ok := s.Indexes[key]
	if !ok {
		ac = &IndexAccessCounts{}
		s.Indexes[key] = ac
	}
	return ac
}

// mergeSnapshot adds other's counters to s and moves other's query
// queue into s. Used to fold the history accumulator into a snapshot
// and a terminated context's residue into history.
func (s *Snapshot) mergeSnapshot(other *Snapshot) {
	for db, tc := range other.Databases {
		s.txnCounts(db).Committed += tc.Committed
		s.txnCounts(db).Aborted += tc.Aborted
	}
	for key, ac := range other.Tables {
		s.tableCounts(key).add(*ac)
	}
	for key, ac := range other.Indexes {
		s.indexCounts(key).add(*ac)
	}
	s.Queries = append(s.Queries, other.Queries...)
	other.Queries = nil
	s.latency.Merge(other.latency)
}

// DrainQueries returns the snapshot's completed query records and
// empties the queue. A second drain returns nothing.
func (s *Snapshot) DrainQueries() []*QueryMetric {
	q := s.Queries
	s.Queries = nil
	return q
}

// TxnCountsFor returns the transaction counters recorded for db, zero
// counts when the snapshot saw no activity for it.
func (s *Snapshot) TxnCountsFor(db DatabaseID) TxnCounts {
	if tc, ok := s.Databases[db]; ok {
		return *tc
	}
	return TxnCounts{}
}

// TableAccessFor returns table counters, zero when absent.
func (s *Snapshot) TableAccessFor(key TableKey) AccessCounts {
	if ac, ok := s.Tables[key]; ok {
		return *ac
	}
	return AccessCounts{}
}

// IndexAccessFor returns index counters, zero when absent.
func (s *Snapshot) IndexAccessFor(key IndexKey) IndexAccessCounts {
	if ac, ok := s.Indexes[key]; ok {
		return *ac
	}
	return IndexAccessCounts{}
}

// TotalCommitted sums committed transactions across all databases.
func (s *Snapshot) TotalCommitted() int64 {
	var total int64
	for _, tc := range s.Databases {
		total += tc.Committed
	}
	return total
}

// LatencySummary reports the query latency distribution seen so far.
type LatencySummary struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Latencies summarizes the merged query latency histogram.
func (s *Snapshot) Latencies() LatencySummary {
	h := s.latency
	if h.TotalCount() == 0 {
		return LatencySummary{}
	}
	return LatencySummary{
		Count: h.TotalCount(),
		Min:   time.Duration(h.Min()) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
	}
}

// String renders the snapshot as the multi-line textual dump written to
// the stats log.
func (s *Snapshot) String() string {
	var b strings.Builder

	dbs := make([]DatabaseID, 0, len(s.Databases))
	for db := range s.Databases {
		dbs = append(dbs, db)
	}
	sort.Slice(dbs, func(i, j int) bool { return dbs[i] < dbs[j] })

	for _, db := range dbs {
		tc := s.Databases[db]
		fmt.Fprintf(&b, "database %d: committed=%d aborted=%d\n", db, tc.Committed, tc.Aborted)
	}

	tables := make([]TableKey, 0, len(s.Tables))
	for key := range s.Tables {
		tables = append(tables, key)
	}
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Database != tables[j].Database {
			return tables[i].Database < tables[j].Database
		}
		return tables[i].Table < tables[j].Table
	})
	for _, key := range tables {
		ac := s.Tables[key]
		fmt.Fprintf(&b, "table %d.%d: reads=%d updates=%d deletes=%d inserts=%d\n",
			key.Database, key.Table, ac.Reads, ac.Updates, ac.Deletes, ac.Inserts)
	}

	indexes := make([]IndexKey, 0, len(s.Indexes))
	for key := range s.Indexes {
		indexes = append(indexes, key)
	}
	sort.Slice(indexes, func(i, j int) bool {
		if indexes[i].Database != indexes[j].Database {
			return indexes[i].Database < indexes[j].Database
		}
		if indexes[i].Table != indexes[j].Table {
			return indexes[i].Table < indexes[j].Table
		}
		return indexes[i].Index < indexes[j].Index
	})
	for _, key := range indexes {
		ac := s.Indexes[key]
		fmt.Fprintf(&b, "index %d.%d.%d: reads=%d deletes=%d inserts=%d\n",
			key.Database, key.Table, key.Index, ac.Reads, ac.Deletes, ac.Inserts)
	}

	if lat := s.Latencies(); lat.Count > 0 {
		fmt.Fprintf(&b, "query latency: count=%d min=%s p50=%s p95=%s p99=%s max=%s\n",
			lat.Count, lat.Min, lat.P50, lat.P95, lat.P99, lat.Max)
	}
	fmt.Fprintf(&b, "pending query records: %d\n", len(s.Queries))

	return b.String()
}
