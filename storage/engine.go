package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"mulldb/deepsize"
)

// engine is the concrete storage engine implementation. It writes every
// mutation to the WAL before applying it to the in-memory heap. On startup
// the WAL is replayed to reconstruct the full in-memory state.
//
// Concurrency: a sync.RWMutex provides single-writer / multi-reader
// access. Write operations take the write lock; read operations take the
// read lock. Scan returns a snapshot iterator that is safe to use after
// the lock is released.
type engine struct {
	mu      sync.RWMutex
	catalog *catalog
	heaps   map[string]*tableHeap
	wal     *WAL
}

// Open creates or opens a storage engine rooted at dataDir. It replays
// the WAL to restore state from a previous run and returns a ready-to-use
// Engine. If the WAL file needs migration and migrate is false, a
// WALMigrationNeededError is returned.
func Open(dataDir string, migrate bool) (Engine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	walPath := filepath.Join(dataDir, "wal.dat")
	wal, err := OpenWAL(walPath, migrate)
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}

	e := &engine{
		catalog: newCatalog(),
		heaps:   make(map[string]*tableHeap),
		wal:     wal,
	}

	if err := wal.Replay(e); err != nil {
		wal.Close()
		return nil, fmt.Errorf("replay WAL: %w", err)
	}

	return e, nil
}

// Close closes the WAL file.
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wal.Close()
}

// -------------------------------------------------------------------------
// ReplayHandler — used during WAL replay to rebuild in-memory state
// -------------------------------------------------------------------------

func (e *engine) OnCreateTable(name string, columns []ColumnDef) error {
	if err := e.catalog.createTable(name, columns); err != nil {
		return err
	}
	e.heaps[name] = newTableHeap(*e.catalog.tables[name])
	return nil
}

func (e *engine) OnDropTable(name string) error {
	if err := e.catalog.dropTable(name); err != nil {
		return err
	}
	delete(e.heaps, name)
	return nil
}

func (e *engine) OnInsert(table string, rowID int64, values []any) error {
	heap, ok := e.heaps[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	return heap.insertWithID(rowID, values)
}

func (e *engine) OnDelete(table string, rowIDs []int64) error {
	heap, ok := e.heaps[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	heap.deleteRows(rowIDs)
	return nil
}

func (e *engine) OnAddColumn(table string, col ColumnDef) error {
	if err := e.catalog.addColumn(table, col); err != nil {
		return err
	}
	heap, ok := e.heaps[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	def, _ := e.catalog.getTable(table)
	heap.applyAddColumn(def.Columns[len(def.Columns)-1])
	return nil
}

func (e *engine) OnDropColumn(table string, colName string) error {
	heap, ok := e.heaps[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	if err := e.catalog.dropColumn(table, colName); err != nil {
		return err
	}
	heap.applyDropColumn(colName)
	return nil
}

func (e *engine) OnUpdate(table string, updates []rowUpdate) error {
	heap, ok := e.heaps[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	for _, u := range updates {
		if err := heap.updateRow(u.RowID, u.Values); err != nil {
			return err
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Engine interface — WAL-first, then apply to memory
// -------------------------------------------------------------------------

func (e *engine) CreateTable(name string, columns []ColumnDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.catalog.getTable(name); exists {
		return &TableExistsError{Name: name}
	}
	if err := e.wal.WriteCreateTable(name, columns); err != nil {
		return fmt.Errorf("WAL: %w", err)
	}
	return e.OnCreateTable(name, columns)
}

func (e *engine) DropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.catalog.getTable(name); !ok {
		return &TableNotFoundError{Name: name}
	}
	if err := e.wal.WriteDropTable(name); err != nil {
		return fmt.Errorf("WAL: %w", err)
	}
	return e.OnDropTable(name)
}

func (e *engine) GetTable(name string) (*TableDef, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.catalog.getTable(name)
}

func (e *engine) ListTables() []*TableDef {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defs := make([]*TableDef, 0, len(e.catalog.tables))
	for _, def := range e.catalog.tables {
		defs = append(defs, def)
	}
	return defs
}

func (e *engine) Insert(table string, columns []string, values [][]any) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	heap, ok := e.heaps[table]
	if !ok {
		return 0, &TableNotFoundError{Name: table}
	}

	// Resolve all rows first so we can pre-validate PK uniqueness.
	resolvedRows := make([][]any, 0, len(values))
	for _, vals := range values {
		fullRow, err := e.resolveInsertRow(heap, columns, vals)
		if err != nil {
			return 0, err
		}
		resolvedRows = append(resolvedRows, fullRow)
	}

	// Pre-validate PK uniqueness for all rows before writing any WAL entries.
	if heap.pkCol >= 0 {
		pkCol, _ := heap.def.ColumnByOrdinal(heap.pkCol)
		seen := make(map[any]bool, len(resolvedRows))
		for _, fullRow := range resolvedRows {
			key := fullRow[heap.pkCol]
			if key == nil {
				return 0, &UniqueViolationError{
					Table:  table,
					Column: pkCol.Name,
				}
			}
			if seen[key] {
				return 0, &UniqueViolationError{
					Table:  table,
					Column: pkCol.Name,
					Value:  key,
				}
			}
			seen[key] = true
			if _, exists := heap.pkIdx.Get(key); exists {
				return 0, &UniqueViolationError{
					Table:  table,
					Column: pkCol.Name,
					Value:  key,
				}
			}
		}
	}

	var count int64
	for _, fullRow := range resolvedRows {
		id := heap.allocateID()
		if err := e.wal.WriteInsert(table, id, fullRow); err != nil {
			return count, fmt.Errorf("WAL: %w", err)
		}
		heap.insertWithID(id, fullRow)
		count++
	}
	return count, nil
}

func (e *engine) Scan(table string) (RowIterator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	heap, ok := e.heaps[table]
	if !ok {
		return nil, &TableNotFoundError{Name: table}
	}
	return heap.scan(), nil
}

func (e *engine) Update(table string, sets map[string]any, filter func(Row) bool) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	heap, ok := e.heaps[table]
	if !ok {
		return 0, &TableNotFoundError{Name: table}
	}

	var updates []rowUpdate
	for id, values := range heap.rows {
		row := Row{ID: id, Values: values}
		if filter != nil && !filter(row) {
			continue
		}
		newValues := make([]any, len(values))
		copy(newValues, values)
		for colName, newVal := range sets {
			idx := heap.columnIndex(colName)
			if idx < 0 {
				return 0, &ColumnNotFoundError{Column: colName, Table: heap.def.Name}
			}
			newValues[idx] = newVal
		}
		newValues, err := coerceRowValues(&heap.def, newValues)
		if err != nil {
			return 0, err
		}
		updates = append(updates, rowUpdate{RowID: id, Values: newValues})
	}

	if len(updates) == 0 {
		return 0, nil
	}

	// Pre-validate PK uniqueness before WAL write.
	if heap.pkCol >= 0 {
		pkCol, _ := heap.def.ColumnByOrdinal(heap.pkCol)
		pkColName := pkCol.Name
		if _, changing := sets[pkColName]; changing {
			// Collect all row IDs being updated for fast lookup.
			updatingIDs := make(map[int64]bool, len(updates))
			for _, u := range updates {
				updatingIDs[u.RowID] = true
			}

			seen := make(map[any]bool, len(updates))
			for _, u := range updates {
				newKey := u.Values[heap.pkCol]
				if newKey == nil {
					return 0, &UniqueViolationError{Table: table, Column: pkColName}
				}
				if seen[newKey] {
					return 0, &UniqueViolationError{Table: table, Column: pkColName, Value: newKey}
				}
				seen[newKey] = true
				// Check against existing rows that are NOT being updated.
				if existingID, found := heap.pkIdx.Get(newKey); found && !updatingIDs[existingID] {
					return 0, &UniqueViolationError{Table: table, Column: pkColName, Value: newKey}
				}
			}
		}
	}

	if err := e.wal.WriteUpdate(table, updates); err != nil {
		return 0, fmt.Errorf("WAL: %w", err)
	}
	for _, u := range updates {
		heap.updateRow(u.RowID, u.Values)
	}
	return int64(len(updates)), nil
}

func (e *engine) Delete(table string, filter func(Row) bool) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	heap, ok := e.heaps[table]
	if !ok {
		return 0, &TableNotFoundError{Name: table}
	}

	var ids []int64
	for id, values := range heap.rows {
		row := Row{ID: id, Values: values}
		if filter != nil && !filter(row) {
			continue
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	if err := e.wal.WriteDelete(table, ids); err != nil {
		return 0, fmt.Errorf("WAL: %w", err)
	}
	heap.deleteRows(ids)
	return int64(len(ids)), nil
}

func (e *engine) LookupByPK(table string, value any) (*Row, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	heap, ok := e.heaps[table]
	if !ok {
		return nil, &TableNotFoundError{Name: table}
	}
	row, ok := heap.lookupByPK(value)
	if !ok {
		return nil, nil
	}
	// Return a copy to avoid data races.
	vals := make([]any, len(row.Values))
	copy(vals, row.Values)
	return &Row{ID: row.ID, Values: vals}, nil
}

func (e *engine) AddColumn(table string, col ColumnDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.catalog.getTable(table)
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	for _, existing := range def.Columns {
		if existing.Name == col.Name {
			return &ColumnExistsError{Column: col.Name, Table: table}
		}
	}
	col.Ordinal = def.NextOrdinal
	if err := e.wal.WriteAddColumn(table, col); err != nil {
		return fmt.Errorf("WAL: %w", err)
	}
	return e.OnAddColumn(table, col)
}

func (e *engine) DropColumn(table string, colName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.catalog.getTable(table)
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	found := false
	for _, col := range def.Columns {
		if col.Name == colName {
			found = true
			break
		}
	}
	if !found {
		return &ColumnNotFoundError{Column: colName, Table: table}
	}
	if err := e.wal.WriteDropColumn(table, colName); err != nil {
		return fmt.Errorf("WAL: %w", err)
	}
	return e.OnDropColumn(table, colName)
}

// CreateIndex builds a secondary index over an existing table's column.
// Index contents are derived from the heap on open/replay rather than
// logged to the WAL directly; WAL replay rebuilds the index by replaying
// the owning table's inserts, so no dedicated opcode is needed.
func (e *engine) CreateIndex(table string, idx IndexDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.catalog.createIndex(table, idx); err != nil {
		return err
	}
	heap := e.heaps[table]
	heap.addIndexStructure(idx)
	return nil
}

func (e *engine) DropIndex(table string, indexName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.catalog.dropIndex(table, indexName); err != nil {
		return err
	}
	heap, ok := e.heaps[table]
	if !ok {
		return &TableNotFoundError{Name: table}
	}
	heap.removeIndexStructure(indexName)
	return nil
}

func (e *engine) LookupByIndex(table string, indexName string, value any) ([]Row, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	heap, ok := e.heaps[table]
	if !ok {
		return nil, &TableNotFoundError{Name: table}
	}
	return heap.lookupByIndex(indexName, value)
}

func (e *engine) RowCount(table string) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	heap, ok := e.heaps[table]
	if !ok {
		return 0, &TableNotFoundError{Name: table}
	}
	return heap.rowCount(), nil
}

// MemoryUsage reports the deep memory footprint of every table's row
// heap and its indexes, for SHOW MEMORY.
func (e *engine) MemoryUsage() []TableMemoryInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.heaps))
	for name := range e.heaps {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]TableMemoryInfo, 0, len(names))
	for _, name := range names {
		heap := e.heaps[name]
		info := TableMemoryInfo{
			TableName: name,
			RowBytes:  deepsize.Of(heap.rows),
		}
		if heap.pkCol >= 0 && heap.pkIdx != nil {
			info.PKIndex = &IndexMemory{
				Type:  "btree",
				Name:  name + "_pkey",
				Bytes: deepsize.Of(heap.pkIdx),
			}
		}
		indexNames := make([]string, 0, len(heap.indexes))
		for idxName := range heap.indexes {
			indexNames = append(indexNames, idxName)
		}
		sort.Strings(indexNames)
		for _, idxName := range indexNames {
			si := heap.indexes[idxName]
			typ := "multi-btree"
			var bytes int64
			if si.unique != nil {
				typ = "btree"
				bytes = deepsize.Of(si.unique)
			} else {
				bytes = deepsize.Of(si.multi)
			}
			info.Indexes = append(info.Indexes, IndexMemory{Type: typ, Name: idxName, Bytes: bytes})
		}
		infos = append(infos, info)
	}
	return infos
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// resolveInsertRow maps named columns + values to a full row in column
// order, filling unspecified columns with nil (NULL). When columns is nil
// the values are used directly (must match the table width).
func (e *engine) resolveInsertRow(heap *tableHeap, columns []string, values []any) ([]any, error) {
	def := &heap.def
	row := make([]any, def.NextOrdinal)

	if columns == nil {
		if len(values) != len(def.Columns) {
			return nil, &ValueCountError{Expected: len(def.Columns), Got: len(values)}
		}
		for i, col := range def.Columns {
			row[col.Ordinal] = values[i]
		}
		return coerceRowValues(def, row)
	}

	for i, colName := range columns {
		idx := heap.columnIndex(colName)
		if idx < 0 {
			return nil, &ColumnNotFoundError{Column: colName, Table: def.Name}
		}
		if i >= len(values) {
			return nil, &ValueCountError{Expected: len(columns), Got: len(values)}
		}
		row[idx] = values[i]
	}
	return coerceRowValues(def, row)
}
