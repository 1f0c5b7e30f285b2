package aggregator

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/quarrydb/quarry/internal/sink"
	"github.com/quarrydb/quarry/internal/stats"
)

// PersistenceWriter drains one snapshot into the sink inside a single
// atomic transaction: database rows, table rows, index rows, then the
// destructively drained query records. Targets come from the sink's
// catalog so databases with no activity this interval still get a zero
// row and the time series stays dense.
type PersistenceWriter struct {
	sink   sink.Sink
	logger *zap.Logger
}

func NewPersistenceWriter(s sink.Sink, logger *zap.Logger) *PersistenceWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersistenceWriter{sink: s, logger: logger}
}

type flushTarget struct {
	db      stats.DatabaseID
	tables  []stats.TableID
	indexes map[stats.TableID][]stats.IndexID
}

// Flush writes every metric row for one interval. Either all rows
// commit or the transaction aborts and the interval's metrics are
// dropped. Catalog enumeration happens before the transaction opens so
// no lookup ever blocks behind the write.
func (w *PersistenceWriter) Flush(ctx context.Context, snap *stats.Snapshot, timestamp int64) error {
	targets, err := w.enumerate(ctx)
	if err != nil {
		return fmt.Errorf("aggregator: enumerate flush targets: %w", err)
	}

	tx, err := w.sink.Begin(ctx)
	if err != nil {
		return fmt.Errorf("aggregator: begin flush: %w", err)
	}

	if err := w.writeRows(tx, snap, targets, timestamp); err != nil {
		if abortErr := tx.Abort(); abortErr != nil {
			w.logger.Warn("abort after failed flush", zap.Error(abortErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("aggregator: commit flush: %w", err)
	}
	return nil
}

func (w *PersistenceWriter) enumerate(ctx context.Context) ([]flushTarget, error) {
	dbs, err := w.sink.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]flushTarget, 0, len(dbs))
	for _, db := range dbs {
		tables, err := w.sink.ListTables(ctx, db)
		if err != nil {
			return nil, err
		}
		target := flushTarget{db: db, tables: tables, indexes: make(map[stats.TableID][]stats.IndexID, len(tables))}
		for _, table := range tables {
			indexes, err := w.sink.ListIndexes(ctx, db, table)
			if err != nil {
				return nil, err
			}
			target.indexes[table] = indexes
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (w *PersistenceWriter) writeRows(tx sink.Tx, snap *stats.Snapshot, targets []flushTarget, timestamp int64) error {
	for _, target := range targets {
		tc := snap.TxnCountsFor(target.db)
		if err := tx.InsertDatabaseMetric(sink.DatabaseRow{
			Database:  target.db,
			Committed: tc.Committed,
			Aborted:   tc.Aborted,
			Timestamp: timestamp,
		}); err != nil {
			return fmt.Errorf("aggregator: database row %d: %w", target.db, err)
		}

		for _, table := range target.tables {
			key := stats.TableKey{Database: target.db, Table: table}
			ac := snap.TableAccessFor(key)
			if err := tx.InsertTableMetric(sink.TableRow{
				Database:  target.db,
				Table:     table,
				Reads:     ac.Reads,
				Updates:   ac.Updates,
				Deletes:   ac.Deletes,
				Inserts:   ac.Inserts,
				Timestamp: timestamp,
			}); err != nil {
				return fmt.Errorf("aggregator: table row %d.%d: %w", target.db, table, err)
			}

			for _, index := range target.indexes[table] {
				ikey := stats.IndexKey{Database: target.db, Table: table, Index: index}
				iac := snap.IndexAccessFor(ikey)
				if err := tx.InsertIndexMetric(sink.IndexRow{
					Database:  target.db,
					Table:     table,
					Index:     index,
					Reads:     iac.Reads,
					Deletes:   iac.Deletes,
					Inserts:   iac.Inserts,
					Timestamp: timestamp,
				}); err != nil {
					return fmt.Errorf("aggregator: index row %d.%d.%d: %w", target.db, table, index, err)
				}
			}
		}
	}

	for _, q := range snap.DrainQueries() {
		row := queryRow(q, timestamp)
		if err := tx.InsertQueryMetric(row); err != nil {
			return fmt.Errorf("aggregator: query row %q: %w", q.Name, err)
		}
	}
	return nil
}

// queryRow converts one completed query record, enforcing the
// parameter-buffer invariant: a nonzero parameter count with missing or
// unparsable value buffer means corrupted bookkeeping upstream, and
// writing the row anyway would persist garbage.
func queryRow(q *stats.QueryMetric, timestamp int64) sink.QueryRow {
	row := sink.QueryRow{
		Name:      q.Name,
		Database:  q.Database,
		Reads:     q.Access.Reads,
		Updates:   q.Access.Updates,
		Deletes:   q.Access.Deletes,
		Inserts:   q.Access.Inserts,
		LatencyUS: q.Latency.Microseconds(),
		CPUTimeUS: (q.CPUSystem + q.CPUUser).Microseconds(),
		Timestamp: timestamp,
	}
	if q.Params != nil {
		if q.Params.Count > 0 && len(q.Params.Values) == 0 {
			panic(fmt.Sprintf("aggregator: query %q reports %d params with empty value buffer", q.Name, q.Params.Count))
		}
		if len(q.Params.Values) > 0 && !gjson.ValidBytes(q.Params.Values) {
			panic(fmt.Sprintf("aggregator: query %q has malformed param value buffer", q.Name))
		}
		row.ParamCount = q.Params.Count
		row.ParamTypes = q.Params.Types
		row.ParamFmts = q.Params.Formats
		row.ParamVals = q.Params.Values
	}
	return row
}
