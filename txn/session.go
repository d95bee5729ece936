package txn

import (
	"sync"

	"mulldb/cc"
	"mulldb/storage"
)

// Session is one client connection's transaction state (§4.7): either
// idle (no tid), or inside a transaction with a buffer of operations
// awaiting COMMIT or ABORT. A zero tid means auto-commit: DML wraps
// itself in an implicit BEGIN/COMMIT.
type Session struct {
	coord    *Coordinator
	clientID string

	mu     sync.Mutex
	tid    int64
	buffer []BufferedOperation
}

// InTransaction reports whether an explicit transaction is open, used by
// the server to choose the dbms>/dbms*> prompt (§6).
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tid != 0
}

// Begin opens an explicit transaction: allocates a tid, writes
// BEGIN(tid), and installs an empty buffer.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tid != 0 {
		return nil // already inside a transaction; BEGIN is idempotent here
	}
	tid := s.coord.cc.Begin(s.clientID)
	if err := s.coord.wal.LogBegin(tid); err != nil {
		return err
	}
	s.tid = tid
	s.buffer = nil
	s.coord.registerSession(tid, s)
	return nil
}

// withAutoCommit runs fn inside an implicit single-statement transaction
// when the session has no explicit one open, committing on success and
// aborting on error; inside an explicit transaction, fn's buffered ops
// just accumulate for the eventual COMMIT/ABORT. A Protocol-category
// error (§7) — a Wait-Die/TSO/OCC die — drives a full abort regardless
// of which mode we're in: the transaction cannot continue once the CC
// manager has refused it, explicit or not.
func (s *Session) withAutoCommit(fn func() error) error {
	s.mu.Lock()
	explicit := s.tid != 0
	s.mu.Unlock()

	if explicit {
		if err := fn(); err != nil {
			if _, died := err.(*AbortedError); died {
				_ = s.Abort(AbortCCDie)
			}
			return err
		}
		return nil
	}
	if err := s.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = s.Abort(AbortError)
		return err
	}
	return s.Commit()
}

// Insert buffers one or more rows for later (or auto-commit immediate)
// insertion. Matches storage.Engine.Insert's signature so the executor
// can route through it with no change to call sites beyond which
// receiver they call.
func (s *Session) Insert(table string, columns []string, values [][]any) (int64, error) {
	var n int64
	err := s.withAutoCommit(func() error {
		def, ok := s.coord.engine.GetTable(table)
		if !ok {
			return &storage.TableNotFoundError{Name: table}
		}
		for _, vals := range values {
			newRow := partialRowMap(def, columns, vals)
			if v := s.coord.cc.Validate(s.tid, table, nil, cc.Write); v == cc.Die {
				return &AbortedError{TID: s.tid, Reason: AbortCCDie}
			}
			if err := s.appendAndLog(BufferedOperation{Kind: "insert", Table: table, NewRow: newRow}); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// partialRowMap builds a column-keyed map from an INSERT's column list
// (or, if nil, the table's full column order) and values.
func partialRowMap(def *storage.TableDef, columns []string, values []any) map[string]any {
	row := make(map[string]any)
	if columns == nil {
		for i, col := range def.Columns {
			if i < len(values) {
				row[col.Name] = values[i]
			}
		}
		return row
	}
	for i, name := range columns {
		if i < len(values) {
			row[name] = values[i]
		}
	}
	return row
}

// Update buffers one BufferedOperation per row currently matching
// filter, computed against the Storage view (read-your-writes for
// rows already materialized; per §4.6, buffered inserts earlier in the
// same transaction are not visible to this scan).
func (s *Session) Update(table string, sets map[string]any, filter func(storage.Row) bool) (int64, error) {
	var n int64
	err := s.withAutoCommit(func() error {
		def, ok := s.coord.engine.GetTable(table)
		if !ok {
			return &storage.TableNotFoundError{Name: table}
		}
		pkOrdinal := def.PrimaryKeyColumn()

		iter, err := s.coord.engine.Scan(table)
		if err != nil {
			return err
		}
		defer iter.Close()

		for {
			row, ok := iter.Next()
			if !ok {
				break
			}
			if filter != nil && !filter(row) {
				continue
			}
			var rowKey any
			if pkOrdinal >= 0 {
				rowKey = storage.RowValue(row.Values, pkOrdinal)
			}
			if v := s.coord.cc.Validate(s.tid, table, rowKey, cc.Write); v == cc.Die {
				return &AbortedError{TID: s.tid, Reason: AbortCCDie}
			}
			old := rowToMap(def, row)
			newRow := applySets(old, sets)
			if err := s.appendAndLog(BufferedOperation{Kind: "update", Table: table, OldRow: old, NewRow: newRow}); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Delete buffers one BufferedOperation per row currently matching
// filter.
func (s *Session) Delete(table string, filter func(storage.Row) bool) (int64, error) {
	var n int64
	err := s.withAutoCommit(func() error {
		def, ok := s.coord.engine.GetTable(table)
		if !ok {
			return &storage.TableNotFoundError{Name: table}
		}
		pkOrdinal := def.PrimaryKeyColumn()

		iter, err := s.coord.engine.Scan(table)
		if err != nil {
			return err
		}
		defer iter.Close()

		for {
			row, ok := iter.Next()
			if !ok {
				break
			}
			if filter != nil && !filter(row) {
				continue
			}
			var rowKey any
			if pkOrdinal >= 0 {
				rowKey = storage.RowValue(row.Values, pkOrdinal)
			}
			if v := s.coord.cc.Validate(s.tid, table, rowKey, cc.Write); v == cc.Die {
				return &AbortedError{TID: s.tid, Reason: AbortCCDie}
			}
			old := rowToMap(def, row)
			if err := s.appendAndLog(BufferedOperation{Kind: "delete", Table: table, OldRow: old}); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// appendAndLog appends op to the buffer and writes its WRITE log record
// immediately, honoring the write-ahead discipline from §4.7.
func (s *Session) appendAndLog(op BufferedOperation) error {
	s.mu.Lock()
	s.buffer = append(s.buffer, op)
	s.mu.Unlock()

	return s.coord.wal.LogWrite(s.tid, op.Table, op.OldRow, op.NewRow)
}

// Commit implements §4.7's COMMIT algorithm: group by (table, kind),
// collapse UPDATE groups by row identity, flush each group, append
// COMMIT, release locks, clear the buffer.
func (s *Session) Commit() error {
	s.mu.Lock()
	tid := s.tid
	ops := s.buffer
	s.buffer = nil
	s.tid = 0
	s.mu.Unlock()

	if tid == 0 {
		return nil // nothing was open
	}
	defer s.coord.unregisterSession(tid)

	groups := groupOps(ops)
	for _, group := range groups {
		collapsed := group.ops
		if group.kind == "update" {
			collapsed = collapseUpdates(s.coord.engine, group.table, group.ops)
		}
		for _, op := range collapsed {
			if err := s.coord.applyOne(op); err != nil {
				return err
			}
		}
	}

	if err := s.coord.wal.LogCommit(tid); err != nil {
		return err
	}
	return s.coord.cc.End(tid, cc.Committed)
}

// Abort implements §4.7's ABORT algorithm: discard the buffer, undo any
// writes a checkpoint already flushed to Storage, append ABORT, release
// locks.
func (s *Session) Abort(reason AbortReason) error {
	s.mu.Lock()
	tid := s.tid
	s.buffer = nil
	s.tid = 0
	s.mu.Unlock()

	if tid == 0 {
		return nil
	}
	defer s.coord.unregisterSession(tid)

	undo, err := s.coord.wal.RecoverTransaction(tid)
	if err != nil {
		return err
	}
	for _, op := range undo {
		if err := s.coord.applyUndo(op); err != nil {
			return err
		}
	}

	if err := s.coord.wal.LogAbort(tid); err != nil {
		return err
	}
	return s.coord.cc.End(tid, cc.Aborted)
}

type opGroup struct {
	table string
	kind  string
	ops   []BufferedOperation
}

// groupOps groups buffered ops by (table, kind), preserving first-seen
// group order (§4.7 step 1).
func groupOps(ops []BufferedOperation) []opGroup {
	index := make(map[string]int)
	var groups []opGroup
	for _, op := range ops {
		key := op.Table + "/" + op.Kind
		if i, ok := index[key]; ok {
			groups[i].ops = append(groups[i].ops, op)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, opGroup{table: op.Table, kind: op.Kind, ops: []BufferedOperation{op}})
	}
	return groups
}

// collapseUpdates implements §4.7 step 2: collapse an UPDATE group by
// row identity, keeping first_old/last_new, and dropping updates that
// net to no change.
func collapseUpdates(engine storage.Engine, table string, ops []BufferedOperation) []BufferedOperation {
	def, ok := engine.GetTable(table)
	if !ok {
		return ops
	}

	order := []any{}
	byIdentity := make(map[any]*BufferedOperation)
	for _, op := range ops {
		id := rowIdentity(def, op.OldRow)
		if existing, ok := byIdentity[id]; ok {
			// Each op's OldRow/NewRow was computed against the
			// unchanged Storage row (buffered writes never mutate
			// Storage before commit), so later ops in the same group
			// only carry their own SET clause as a diff against that
			// same baseline. Recompose cumulatively onto the running
			// new_row so "last_new" reflects every SET in submission
			// order, not just the last op's isolated diff.
			existing.NewRow = applySets(existing.NewRow, changedColumns(op.OldRow, op.NewRow))
			continue
		}
		copyOp := op
		byIdentity[id] = &copyOp
		order = append(order, id)
	}

	var out []BufferedOperation
	for _, id := range order {
		op := byIdentity[id]
		if rowsEqual(op.OldRow, op.NewRow) {
			continue
		}
		out = append(out, *op)
	}
	return out
}
