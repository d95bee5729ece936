package storage

import "mulldb/storage/index"

// secondaryIndex wraps either a unique or non-unique index over one column.
type secondaryIndex struct {
	def    IndexDef
	colIdx int
	unique *index.BTree      // non-nil when def.Unique
	multi  *index.MultiBTree // non-nil when !def.Unique
}

// tableHeap holds the in-memory row data for a single table.
// It is populated during WAL replay and modified by engine operations.
type tableHeap struct {
	def     TableDef
	rows    map[int64][]any // rowID → column values
	nextID  int64           // next ID to assign on insert
	pkCol   int             // ordinal of the PK column, or -1
	pkIdx   *index.BTree    // nil when pkCol < 0
	indexes map[string]*secondaryIndex
}

func newTableHeap(def TableDef) *tableHeap {
	h := &tableHeap{
		def:     def,
		rows:    make(map[int64][]any),
		nextID:  1,
		pkCol:   def.PrimaryKeyColumn(),
		indexes: make(map[string]*secondaryIndex),
	}
	if h.pkCol >= 0 {
		h.pkIdx = index.NewBTree(CompareValues)
	}
	for _, idx := range def.Indexes {
		h.addIndexStructure(idx)
	}
	return h
}

func (h *tableHeap) addIndexStructure(idx IndexDef) {
	colIdx := h.columnIndex(idx.Column)
	si := &secondaryIndex{def: idx, colIdx: colIdx}
	if idx.Unique {
		si.unique = index.NewBTree(CompareValues)
	} else {
		si.multi = index.NewMultiBTree(CompareValues)
	}
	for id, row := range h.rows {
		if si.colIdx < 0 || si.colIdx >= len(row) {
			continue
		}
		key := row[si.colIdx]
		if key == nil {
			continue
		}
		if si.unique != nil {
			si.unique.Put(key, id)
		} else {
			si.multi.Put(key, id)
		}
	}
	h.indexes[idx.Name] = si
}

// removeIndexStructure discards the named secondary index.
func (h *tableHeap) removeIndexStructure(name string) {
	delete(h.indexes, name)
}

// applyAddColumn extends the heap's schema copy with a new column.
// Existing rows are left at their prior width; storage.RowValue returns
// nil for ordinals beyond a row's length.
func (h *tableHeap) applyAddColumn(col ColumnDef) {
	h.def.Columns = append(h.def.Columns, col)
	h.def.NextOrdinal = col.Ordinal + 1
}

// applyDropColumn removes a column from the heap's schema copy. Row
// data is left untouched; the column's ordinal is never reused.
func (h *tableHeap) applyDropColumn(colName string) {
	for i, col := range h.def.Columns {
		if col.Name == colName {
			h.def.Columns = append(h.def.Columns[:i], h.def.Columns[i+1:]...)
			break
		}
	}
	if h.pkCol >= 0 && h.def.PrimaryKeyColumn() < 0 {
		h.pkCol = -1
		h.pkIdx = nil
	}
}

// rowCount returns the number of live rows in the heap.
func (h *tableHeap) rowCount() int64 {
	return int64(len(h.rows))
}

// allocateID reserves and returns the next row ID.
func (h *tableHeap) allocateID() int64 {
	id := h.nextID
	h.nextID++
	return id
}

// insertWithID stores a row with a specific ID (used by both live inserts
// and WAL replay) and maintains the PK index and secondary indexes.
func (h *tableHeap) insertWithID(id int64, values []any) error {
	row := make([]any, len(values))
	copy(row, values)
	h.rows[id] = row
	if id >= h.nextID {
		h.nextID = id + 1
	}
	if h.pkCol >= 0 && h.pkCol < len(row) {
		h.pkIdx.Put(row[h.pkCol], id)
	}
	for _, si := range h.indexes {
		if si.colIdx < 0 || si.colIdx >= len(row) {
			continue
		}
		key := row[si.colIdx]
		if key == nil {
			continue
		}
		if si.unique != nil {
			si.unique.Put(key, id)
		} else {
			si.multi.Put(key, id)
		}
	}
	return nil
}

// deleteRows removes the rows with the given IDs and their index entries.
func (h *tableHeap) deleteRows(ids []int64) {
	for _, id := range ids {
		row, ok := h.rows[id]
		if !ok {
			continue
		}
		if h.pkCol >= 0 && h.pkCol < len(row) {
			h.pkIdx.Delete(row[h.pkCol])
		}
		for _, si := range h.indexes {
			if si.colIdx < 0 || si.colIdx >= len(row) {
				continue
			}
			key := row[si.colIdx]
			if key == nil {
				continue
			}
			if si.unique != nil {
				si.unique.Delete(key)
			} else {
				si.multi.Delete(key, id)
			}
		}
		delete(h.rows, id)
	}
}

// updateRow replaces the values for a given row ID, keeping indexes in sync.
func (h *tableHeap) updateRow(id int64, values []any) error {
	old, ok := h.rows[id]
	if ok {
		if h.pkCol >= 0 && h.pkCol < len(old) {
			h.pkIdx.Delete(old[h.pkCol])
		}
		for _, si := range h.indexes {
			if si.colIdx < 0 || si.colIdx >= len(old) {
				continue
			}
			key := old[si.colIdx]
			if key == nil {
				continue
			}
			if si.unique != nil {
				si.unique.Delete(key)
			} else {
				si.multi.Delete(key, id)
			}
		}
	}
	row := make([]any, len(values))
	copy(row, values)
	h.rows[id] = row
	if h.pkCol >= 0 && h.pkCol < len(row) {
		h.pkIdx.Put(row[h.pkCol], id)
	}
	for _, si := range h.indexes {
		if si.colIdx < 0 || si.colIdx >= len(row) {
			continue
		}
		key := row[si.colIdx]
		if key == nil {
			continue
		}
		if si.unique != nil {
			si.unique.Put(key, id)
		} else {
			si.multi.Put(key, id)
		}
	}
	return nil
}

// lookupByPK returns the row with the given primary key value, if any.
func (h *tableHeap) lookupByPK(value any) (Row, bool) {
	if h.pkCol < 0 {
		return Row{}, false
	}
	id, ok := h.pkIdx.Get(value)
	if !ok {
		return Row{}, false
	}
	values, ok := h.rows[id]
	if !ok {
		return Row{}, false
	}
	return Row{ID: id, Values: values}, true
}

// lookupByIndex returns all rows matching value in the named secondary index.
func (h *tableHeap) lookupByIndex(name string, value any) ([]Row, error) {
	si, ok := h.indexes[name]
	if !ok {
		return nil, &IndexNotFoundError{Name: name, Table: h.def.Name}
	}
	var ids []int64
	if si.unique != nil {
		if id, found := si.unique.Get(value); found {
			ids = []int64{id}
		}
	} else {
		ids = si.multi.GetAll(value)
	}
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		if values, ok := h.rows[id]; ok {
			rows = append(rows, Row{ID: id, Values: values})
		}
	}
	return rows, nil
}

// scan returns a RowIterator over all rows in the table.
// The iteration order is not guaranteed.
func (h *tableHeap) scan() RowIterator {
	rows := make([]Row, 0, len(h.rows))
	for id, values := range h.rows {
		rows = append(rows, Row{ID: id, Values: values})
	}
	return &sliceIterator{rows: rows}
}

// columnIndex returns the ordinal of the named column, or -1. Ordinals
// index directly into a row's Values slice and are never reused after
// a DROP COLUMN, so this is distinct from the column's position in
// def.Columns once any column has been dropped.
func (h *tableHeap) columnIndex(name string) int {
	for _, col := range h.def.Columns {
		if col.Name == name {
			return col.Ordinal
		}
	}
	return -1
}

// sliceIterator is a RowIterator backed by an in-memory slice.
type sliceIterator struct {
	rows []Row
	pos  int
}

func (it *sliceIterator) Next() (Row, bool) {
	if it.pos >= len(it.rows) {
		return Row{}, false
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true
}

func (it *sliceIterator) Close() error { return nil }
