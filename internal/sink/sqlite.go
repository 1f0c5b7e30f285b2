package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quarrydb/quarry/internal/stats"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS catalog_databases (
	database_id INTEGER PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS catalog_tables (
	database_id INTEGER NOT NULL,
	table_id    INTEGER NOT NULL,
	PRIMARY KEY (database_id, table_id)
);
CREATE TABLE IF NOT EXISTS catalog_indexes (
	database_id INTEGER NOT NULL,
	table_id    INTEGER NOT NULL,
	index_id    INTEGER NOT NULL,
	PRIMARY KEY (database_id, table_id, index_id)
);
CREATE TABLE IF NOT EXISTS database_metrics (
	database_id INTEGER NOT NULL,
	committed   INTEGER NOT NULL,
	aborted     INTEGER NOT NULL,
	ts          INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS table_metrics (
	database_id INTEGER NOT NULL,
	table_id    INTEGER NOT NULL,
	reads       INTEGER NOT NULL,
	updates     INTEGER NOT NULL,
	deletes     INTEGER NOT NULL,
	inserts     INTEGER NOT NULL,
	ts          INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS index_metrics (
	database_id INTEGER NOT NULL,
	table_id    INTEGER NOT NULL,
	index_id    INTEGER NOT NULL,
	reads       INTEGER NOT NULL,
	deletes     INTEGER NOT NULL,
	inserts     INTEGER NOT NULL,
	ts          INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS query_metrics (
	query_name   TEXT NOT NULL,
	database_id  INTEGER NOT NULL,
	param_count  INTEGER NOT NULL,
	param_types  BLOB,
	param_fmts   BLOB,
	param_vals   BLOB,
	reads        INTEGER NOT NULL,
	updates      INTEGER NOT NULL,
	deletes      INTEGER NOT NULL,
	inserts      INTEGER NOT NULL,
	latency_us   INTEGER NOT NULL,
	cpu_time_us  INTEGER NOT NULL,
	ts           INTEGER NOT NULL
);
`

// SQLite persists metric rows in a SQLite file. The connection runs in
// WAL mode with a single writer, which is all the aggregation engine
// needs: at most one flush transaction is open at a time.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the metrics database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// SeedCatalog inserts a catalog triple so it shows up in the List
// lookups. Pass table 0 to register only the database, index 0 to
// register only the table.
func (s *SQLite) SeedCatalog(ctx context.Context, db stats.DatabaseID, table stats.TableID, indexes ...stats.IndexID) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO catalog_databases (database_id) VALUES (?)", db); err != nil {
		return fmt.Errorf("sink: seed database: %w", err)
	}
	if table == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO catalog_tables (database_id, table_id) VALUES (?, ?)", db, table); err != nil {
		return fmt.Errorf("sink: seed table: %w", err)
	}
	for _, index := range indexes {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO catalog_indexes (database_id, table_id, index_id) VALUES (?, ?, ?)",
			db, table, index); err != nil {
			return fmt.Errorf("sink: seed index: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sink: begin: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLite) ListDatabases(ctx context.Context) ([]stats.DatabaseID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT database_id FROM catalog_databases ORDER BY database_id")
	if err != nil {
		return nil, fmt.Errorf("sink: list databases: %w", err)
	}
	defer rows.Close()

	var out []stats.DatabaseID
	for rows.Next() {
		var id stats.DatabaseID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sink: scan database id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLite) ListTables(ctx context.Context, db stats.DatabaseID) ([]stats.TableID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT table_id FROM catalog_tables WHERE database_id = ? ORDER BY table_id", db)
	if err != nil {
		return nil, fmt.Errorf("sink: list tables: %w", err)
	}
	defer rows.Close()

	var out []stats.TableID
	for rows.Next() {
		var id stats.TableID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sink: scan table id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLite) ListIndexes(ctx context.Context, db stats.DatabaseID, table stats.TableID) ([]stats.IndexID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT index_id FROM catalog_indexes WHERE database_id = ? AND table_id = ? ORDER BY index_id",
		db, table)
	if err != nil {
		return nil, fmt.Errorf("sink: list indexes: %w", err)
	}
	defer rows.Close()

	var out []stats.IndexID
	for rows.Next() {
		var id stats.IndexID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sink: scan index id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertDatabaseMetric(row DatabaseRow) error {
	_, err := t.tx.Exec(
		"INSERT INTO database_metrics (database_id, committed, aborted, ts) VALUES (?, ?, ?, ?)",
		row.Database, row.Committed, row.Aborted, row.Timestamp)
	if err != nil {
		return fmt.Errorf("sink: insert database metric: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertTableMetric(row TableRow) error {
	_, err := t.tx.Exec(
		"INSERT INTO table_metrics (database_id, table_id, reads, updates, deletes, inserts, ts) VALUES (?, ?, ?, ?, ?, ?, ?)",
		row.Database, row.Table, row.Reads, row.Updates, row.Deletes, row.Inserts, row.Timestamp)
	if err != nil {
		return fmt.Errorf("sink: insert table metric: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertIndexMetric(row IndexRow) error {
	_, err := t.tx.Exec(
		"INSERT INTO index_metrics (database_id, table_id, index_id, reads, deletes, inserts, ts) VALUES (?, ?, ?, ?, ?, ?, ?)",
		row.Database, row.Table, row.Index, row.Reads, row.Deletes, row.Inserts, row.Timestamp)
	if err != nil {
		return fmt.Errorf("sink: insert index metric: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertQueryMetric(row QueryRow) error {
	_, err := t.tx.Exec(
		`INSERT INTO query_metrics
		(query_name, database_id, param_count, param_types, param_fmts, param_vals,
		 reads, updates, deletes, inserts, latency_us, cpu_time_us, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Name, row.Database, row.ParamCount, row.ParamTypes, row.ParamFmts, row.ParamVals,
		row.Reads, row.Updates, row.Deletes, row.Inserts, row.LatencyUS, row.CPUTimeUS, row.Timestamp)
	if err != nil {
		return fmt.Errorf("sink: insert query metric: %w", err)
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit: %w", err)
	}
	return nil
}

func (t *sqliteTx) Abort() error {
	return t.tx.Rollback()
}
