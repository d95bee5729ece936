// Package txn implements the Transaction Coordinator (§4.7): per-client
// session state, write-ahead buffering of DML, commit-time batch
// collapse, and abort-time undo through the Recovery Log.
package txn

import (
	"fmt"
	"sync"

	"mulldb/cc"
	"mulldb/recovery"
	"mulldb/storage"
)

// BufferedOperation is one buffered write awaiting commit or abort.
type BufferedOperation struct {
	Kind   string // "insert", "update", or "delete"
	Table  string
	OldRow map[string]any // nil for insert
	NewRow map[string]any // nil for delete
}

// AbortReason explains why a transaction was killed, used for explicit
// signaling instead of exceptions-as-control-flow (§9).
type AbortReason string

const (
	AbortExplicit AbortReason = "explicit"
	AbortCCDie    AbortReason = "concurrency_control"
	AbortError    AbortReason = "error"
)

// AbortedError is returned to the caller when a Die verdict or an
// explicit ABORT ends a transaction.
type AbortedError struct {
	TID    int64
	Reason AbortReason
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("transaction %d aborted (%s)", e.TID, e.Reason)
}

// Coordinator owns the engine, CC manager, and recovery log shared by
// every client session, and tracks each active session's buffer so a
// checkpoint can flush all of them at once (§4.4: "a checkpoint flushes
// all buffered-not-yet-stored writes to Storage").
type Coordinator struct {
	engine storage.Engine
	cc     cc.Manager
	wal    *recovery.Log

	mu       sync.Mutex
	sessions map[int64]*Session // keyed by tid, while active
}

// New constructs a Coordinator. The recovery log's checkpoint flush
// callback is wired to Coordinator.flushAllActive automatically.
func New(engine storage.Engine, manager cc.Manager, walPath string, checkpointThreshold int) (*Coordinator, error) {
	co := &Coordinator{engine: engine, cc: manager, sessions: make(map[int64]*Session)}
	wal, err := recovery.Open(walPath, checkpointThreshold, co.flushAllActive)
	if err != nil {
		return nil, err
	}
	co.wal = wal
	return co, nil
}

func (co *Coordinator) Close() error {
	return co.wal.Close()
}

// Engine returns the storage engine the coordinator was built with, for
// callers (e.g. the executor's read-only paths) that need direct access
// alongside a session's transactional writes.
func (co *Coordinator) Engine() storage.Engine {
	return co.engine
}

// NewSession starts a new client session in auto-commit mode; it has no
// tid until Begin is called (explicitly or implicitly for a single
// auto-commit statement).
func (co *Coordinator) NewSession(clientID string) *Session {
	return &Session{coord: co, clientID: clientID}
}

func (co *Coordinator) registerSession(tid int64, s *Session) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.sessions[tid] = s
}

func (co *Coordinator) unregisterSession(tid int64) {
	co.mu.Lock()
	defer co.mu.Unlock()
	delete(co.sessions, tid)
}

// flushAllActive applies every active session's current buffer directly
// to Storage, in buffer order, without the commit-time collapse (a
// checkpoint is not a commit: ops remain open for later COMMIT or
// ABORT). Called with the recovery log's internal lock held via its own
// flush hook, so this must not call back into the log.
func (co *Coordinator) flushAllActive() error {
	co.mu.Lock()
	sessions := make([]*Session, 0, len(co.sessions))
	for _, s := range co.sessions {
		sessions = append(sessions, s)
	}
	co.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		ops := s.buffer
		s.buffer = nil
		s.mu.Unlock()

		for _, op := range ops {
			if err := co.applyOne(op); err != nil {
				return fmt.Errorf("checkpoint flush of tid %d: %w", s.tid, err)
			}
		}
	}
	return nil
}

func (co *Coordinator) applyOne(op BufferedOperation) error {
	def, ok := co.engine.GetTable(op.Table)
	if !ok {
		return &storage.TableNotFoundError{Name: op.Table}
	}
	switch op.Kind {
	case "insert":
		_, err := co.engine.Insert(op.Table, nil, [][]any{rowToValues(def, op.NewRow)})
		return err
	case "delete":
		_, err := co.engine.Delete(op.Table, rowFilter(def, op.OldRow))
		return err
	case "update":
		sets := changedColumns(op.OldRow, op.NewRow)
		if len(sets) == 0 {
			return nil
		}
		_, err := co.engine.Update(op.Table, sets, rowFilter(def, op.OldRow))
		return err
	default:
		return fmt.Errorf("unknown buffered operation kind %q", op.Kind)
	}
}

// applyUndo applies one recovery.UndoOp to Storage, tolerating a row
// that is already absent/present (idempotence, §4.4).
func (co *Coordinator) applyUndo(op recovery.UndoOp) error {
	def, ok := co.engine.GetTable(op.Table)
	if !ok {
		return nil // table itself no longer exists; nothing to undo
	}
	switch op.Kind {
	case "insert":
		_, err := co.engine.Insert(op.Table, nil, [][]any{rowToValues(def, op.NewRow)})
		if isUniqueViolation(err) {
			return nil // already present
		}
		return err
	case "delete":
		n, err := co.engine.Delete(op.Table, rowFilter(def, op.OldRow))
		_ = n // 0 matched means already absent; not an error
		return err
	case "update":
		sets := changedColumns(op.NewRow, op.OldRow)
		if len(sets) == 0 {
			return nil
		}
		_, err := co.engine.Update(op.Table, sets, rowFilter(def, op.NewRow))
		return err
	default:
		return fmt.Errorf("unknown undo operation kind %q", op.Kind)
	}
}

func isUniqueViolation(err error) bool {
	_, ok := err.(*storage.UniqueViolationError)
	return ok
}

func changedColumns(oldRow, newRow map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range newRow {
		if ov, ok := oldRow[k]; !ok || fmt.Sprintf("%v", ov) != fmt.Sprintf("%v", v) {
			out[k] = v
		}
	}
	return out
}
