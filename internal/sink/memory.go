package sink

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/quarrydb/quarry/internal/stats"
)

// ErrInjectedFailure is returned by a Memory transaction once the
// configured failure point is reached.
var ErrInjectedFailure = errors.New("sink: injected failure")

// Memory is an in-process Sink. Rows buffer inside the transaction and
// publish atomically on Commit, which makes it the reference for the
// all-or-nothing flush contract and the default sink for tests and the
// demo workload.
type Memory struct {
	mu        sync.Mutex
	catalog   map[stats.DatabaseID]map[stats.TableID][]stats.IndexID
	databases []DatabaseRow
	tables    []TableRow
	indexes   []IndexRow
	queries   []QueryRow

	// failAfter > 0 makes the failAfter-th insert across the next
	// transactions return ErrInjectedFailure.
	failAfter int
	inserts   int
}

func NewMemory() *Memory {
	return &Memory{catalog: make(map[stats.DatabaseID]map[stats.TableID][]stats.IndexID)}
}

// AddCatalog registers a database/table/index triple so the catalog
// lookups report it. Table 0 registers just the database; index 0 just
// the table.
func (m *Memory) AddCatalog(db stats.DatabaseID, table stats.TableID, indexes ...stats.IndexID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tables, ok := m.catalog[db]
	if !ok {
		tables = make(map[stats.TableID][]stats.IndexID)
		m.catalog[db] = tables
	}
	if table == 0 {
		return
	}
	tables[table] = append(tables[table], indexes...)
}

// FailAfter arms an injected failure on the n-th subsequent insert.
func (m *Memory) FailAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.inserts = 0
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{sink: m}, nil
}

func (m *Memory) ListDatabases(ctx context.Context) ([]stats.DatabaseID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]stats.DatabaseID, 0, len(m.catalog))
	for db := range m.catalog {
		out = append(out, db)
	}
	slices.Sort(out)
	return out, nil
}

func (m *Memory) ListTables(ctx context.Context, db stats.DatabaseID) ([]stats.TableID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]stats.TableID, 0, len(m.catalog[db]))
	for table := range m.catalog[db] {
		out = append(out, table)
	}
	slices.Sort(out)
	return out, nil
}

func (m *Memory) ListIndexes(ctx context.Context, db stats.DatabaseID, table stats.TableID) ([]stats.IndexID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexes := m.catalog[db][table]
	out := make([]stats.IndexID, len(indexes))
	copy(out, indexes)
	slices.Sort(out)
	return out, nil
}

// Rows returns copies of every committed row set.
func (m *Memory) Rows() (databases []DatabaseRow, tables []TableRow, indexes []IndexRow, queries []QueryRow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	databases = append(databases, m.databases...)
	tables = append(tables, m.tables...)
	indexes = append(indexes, m.indexes...)
	queries = append(queries, m.queries...)
	return databases, tables, indexes, queries
}

func (m *Memory) insertAllowed() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAfter <= 0 {
		return nil
	}
	m.inserts++
	if m.inserts >= m.failAfter {
		return ErrInjectedFailure
	}
	return nil
}

type memoryTx struct {
	sink      *Memory
	databases []DatabaseRow
	tables    []TableRow
	indexes   []IndexRow
	queries   []QueryRow
	done      bool
}

func (t *memoryTx) InsertDatabaseMetric(row DatabaseRow) error {
	if err := t.sink.insertAllowed(); err != nil {
		return err
	}
	t.databases = append(t.databases, row)
	return nil
}

func (t *memoryTx) InsertTableMetric(row TableRow) error {
	if err := t.sink.insertAllowed(); err != nil {
		return err
	}
	t.tables = append(t.tables, row)
	return nil
}

func (t *memoryTx) InsertIndexMetric(row IndexRow) error {
	if err := t.sink.insertAllowed(); err != nil {
		return err
	}
	t.indexes = append(t.indexes, row)
	return nil
}

func (t *memoryTx) InsertQueryMetric(row QueryRow) error {
	if err := t.sink.insertAllowed(); err != nil {
		return err
	}
	t.queries = append(t.queries, row)
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true

	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.databases = append(t.sink.databases, t.databases...)
	t.sink.tables = append(t.sink.tables, t.tables...)
	t.sink.indexes = append(t.sink.indexes, t.indexes...)
	t.sink.queries = append(t.sink.queries, t.queries...)
	return nil
}

func (t *memoryTx) Abort() error {
	t.done = true
	t.databases, t.tables, t.indexes, t.queries = nil, nil, nil, nil
	return nil
}
