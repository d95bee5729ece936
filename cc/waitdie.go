package cc

import (
	"fmt"
	"sync"
)

// tableLock tracks the holders and waiters of one table-granularity lock.
type tableLock struct {
	holders map[int64]Mode
	cond    *sync.Cond
}

func newTableLock(mu *sync.Mutex) *tableLock {
	return &tableLock{holders: make(map[int64]Mode), cond: sync.NewCond(mu)}
}

// compatible reports whether tid may be granted mode given the current
// holder set, including upgrade (shared→exclusive) when tid is the sole
// holder.
func (tl *tableLock) compatible(tid int64, mode Mode) bool {
	if len(tl.holders) == 0 {
		return true
	}
	if existing, held := tl.holders[tid]; held && len(tl.holders) == 1 {
		_ = existing
		return true // sole holder, including upgrade to Write
	}
	if mode == Write {
		return false // another transaction holds the table
	}
	for other, m := range tl.holders {
		if other != tid && m == Write {
			return false
		}
	}
	return true
}

// oldestOtherHolder returns the lowest tid among holders other than tid,
// or (0, false) if there is none.
func (tl *tableLock) oldestOtherHolder(tid int64) (int64, bool) {
	found := false
	var oldest int64
	for h := range tl.holders {
		if h == tid {
			continue
		}
		if !found || h < oldest {
			oldest = h
			found = true
		}
	}
	return oldest, found
}

// WaitDie is the primary concurrency control variant: table-granularity
// locks with the Wait-Die deadlock prevention rule. Lower tid means
// older means higher priority. An older requester waits for a younger
// holder; a younger requester dies rather than wait, which keeps every
// wait-for edge pointing older→younger and makes the graph acyclic by
// construction.
type WaitDie struct {
	mu          sync.Mutex
	nextTID     int64
	tables      map[string]*tableLock
	activeCount int
}

// NewWaitDie constructs an empty Wait-Die lock manager.
func NewWaitDie() *WaitDie {
	return &WaitDie{tables: make(map[string]*tableLock)}
}

func (w *WaitDie) getTable(name string) *tableLock {
	tl, ok := w.tables[name]
	if !ok {
		tl = newTableLock(&w.mu)
		w.tables[name] = tl
	}
	return tl
}

// Begin allocates the next monotonically increasing transaction id.
func (w *WaitDie) Begin(clientID string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextTID++
	w.activeCount++
	return w.nextTID
}

// Validate implements the Wait-Die protocol from §4.3.a. A Grant is
// returned immediately. A younger requester conflicting with an older
// holder dies immediately. An older requester conflicting with a younger
// holder blocks inside this call (rather than returning Wait for the
// caller to poll) until the conflict clears or it becomes the oldest
// remaining contender; it is only killed if, upon waking, it is now the
// younger party relative to a still-held lock.
func (w *WaitDie) Validate(tid int64, table string, rowKey any, mode Mode) Verdict {
	w.mu.Lock()
	defer w.mu.Unlock()

	tl := w.getTable(table)
	for {
		if tl.compatible(tid, mode) {
			tl.holders[tid] = combineMode(tl.holders[tid], mode)
			return Grant
		}
		oldest, ok := tl.oldestOtherHolder(tid)
		if !ok || tid < oldest {
			// Requester is older (or no live holder blocks it) — wait.
			tl.cond.Wait()
			continue
		}
		return Die
	}
}

func combineMode(current Mode, requested Mode) Mode {
	if current == Write || requested == Write {
		return Write
	}
	return Read
}

// End releases every lock tid holds across all tables and wakes waiters.
func (w *WaitDie) End(tid int64, outcome Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, tl := range w.tables {
		if _, held := tl.holders[tid]; held {
			delete(tl.holders, tid)
			tl.cond.Broadcast()
		}
	}
	w.activeCount--
	return nil
}

// ChangeAlgorithm is not supported directly on a concrete WaitDie value;
// use Switcher to swap algorithms at runtime.
func (w *WaitDie) ChangeAlgorithm(variant string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.activeCount > 0 {
		return &BusyError{ActiveCount: w.activeCount}
	}
	return fmt.Errorf("WaitDie cannot self-swap; use cc.Switcher")
}
