// Package sink defines the persistent store that receives flushed
// metric rows, plus the catalog lookups used to enumerate flush targets.
package sink

import (
	"context"

	"github.com/quarrydb/quarry/internal/stats"
)

// DatabaseRow is one database-level metric row for one interval.
type DatabaseRow struct {
	Database  stats.DatabaseID
	Committed int64
	Aborted   int64
	Timestamp int64
}

// TableRow is one table-level metric row.
type TableRow struct {
	Database  stats.DatabaseID
	Table     stats.TableID
	Reads     int64
	Updates   int64
	Deletes   int64
	Inserts   int64
	Timestamp int64
}

// IndexRow is one index-level metric row.
type IndexRow struct {
	Database  stats.DatabaseID
	Table     stats.TableID
	Index     stats.IndexID
	Reads     int64
	Deletes   int64
	Inserts   int64
	Timestamp int64
}

// QueryRow is one completed-query metric row.
type QueryRow struct {
	Name       string
	Database   stats.DatabaseID
	ParamCount int
	ParamTypes []byte
	ParamFmts  []byte
	ParamVals  []byte
	Reads      int64
	Updates    int64
	Deletes    int64
	Inserts    int64
	LatencyUS  int64
	CPUTimeUS  int64
	Timestamp  int64
}

// Tx is one atomic write against the sink. Either every inserted row
// becomes visible at Commit, or none do after Abort.
type Tx interface {
	InsertDatabaseMetric(row DatabaseRow) error
	InsertTableMetric(row TableRow) error
	InsertIndexMetric(row IndexRow) error
	InsertQueryMetric(row QueryRow) error
	Commit() error
	Abort() error
}

// Sink is the external store receiving metric rows. Catalog lookups
// enumerate every known database, table and index so zero-activity rows
// are still written and time series stay dense.
type Sink interface {
	Begin(ctx context.Context) (Tx, error)
	ListDatabases(ctx context.Context) ([]stats.DatabaseID, error)
	ListTables(ctx context.Context, db stats.DatabaseID) ([]stats.TableID, error)
	ListIndexes(ctx context.Context, db stats.DatabaseID, table stats.TableID) ([]stats.IndexID, error)
}
