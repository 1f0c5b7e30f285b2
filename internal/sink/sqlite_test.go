package sink_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/quarrydb/quarry/internal/sink"
)

func openTestSQLite(t *testing.T) *sink.SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := sink.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteCatalogRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.SeedCatalog(ctx, 1, 1, 1, 2); err != nil {
		t.Fatalf("SeedCatalog() error = %v", err)
	}
	if err := s.SeedCatalog(ctx, 1, 2); err != nil {
		t.Fatalf("SeedCatalog() error = %v", err)
	}
	if err := s.SeedCatalog(ctx, 2, 0); err != nil {
		t.Fatalf("SeedCatalog() error = %v", err)
	}
	// Seeding the same triple twice must not duplicate.
	if err := s.SeedCatalog(ctx, 1, 1, 1); err != nil {
		t.Fatalf("SeedCatalog() repeat error = %v", err)
	}

	dbs, err := s.ListDatabases(ctx)
	if err != nil {
		t.Fatalf("ListDatabases() error = %v", err)
	}
	if len(dbs) != 2 || dbs[0] != 1 || dbs[1] != 2 {
		t.Errorf("ListDatabases() = %v, want [1 2]", dbs)
	}

	tables, err := s.ListTables(ctx, 1)
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 2 {
		t.Errorf("ListTables(1) = %v, want two tables", tables)
	}

	indexes, err := s.ListIndexes(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListIndexes() error = %v", err)
	}
	if len(indexes) != 2 {
		t.Errorf("ListIndexes(1, 1) = %v, want two indexes", indexes)
	}
}

func TestSQLiteCommitAndRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := sink.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.InsertDatabaseMetric(sink.DatabaseRow{Database: 1, Committed: 7, Aborted: 1, Timestamp: 500}); err != nil {
		t.Fatalf("InsertDatabaseMetric() error = %v", err)
	}
	if err := tx.InsertQueryMetric(sink.QueryRow{
		Name: "q", Database: 1, ParamCount: 1,
		ParamVals: []byte(`{"limit":5}`), LatencyUS: 1200, CPUTimeUS: 300, Timestamp: 500,
	}); err != nil {
		t.Fatalf("InsertQueryMetric() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	tx, err = s.Begin(ctx)
	if err != nil {
		t.Fatalf("second Begin() error = %v", err)
	}
	if err := tx.InsertDatabaseMetric(sink.DatabaseRow{Database: 2, Committed: 9, Timestamp: 600}); err != nil {
		t.Fatalf("InsertDatabaseMetric() error = %v", err)
	}
	if err := tx.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open for verification: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM database_metrics").Scan(&count); err != nil {
		t.Fatalf("count database_metrics: %v", err)
	}
	if count != 1 {
		t.Errorf("database_metrics rows = %d, want 1 (aborted insert must not persist)", count)
	}

	var committed int64
	if err := db.QueryRow("SELECT committed FROM database_metrics WHERE database_id = 1").Scan(&committed); err != nil {
		t.Fatalf("query committed: %v", err)
	}
	if committed != 7 {
		t.Errorf("committed = %d, want 7", committed)
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM query_metrics").Scan(&count); err != nil {
		t.Fatalf("count query_metrics: %v", err)
	}
	if count != 1 {
		t.Errorf("query_metrics rows = %d, want 1", count)
	}
}
