package cc

import "sync"

// occTxn accumulates one transaction's read-set and write-set during its
// read phase.
type occTxn struct {
	readSet  map[string]bool
	writeSet map[string]bool
	startAt  int64 // sequence number at Begin, used to bound the conflict scan
}

// committedWrite records a committed transaction's write-set, tagged
// with the commit sequence number, so later validations can detect
// overlap with concurrent commits.
type committedWrite struct {
	seq      int64
	writeSet map[string]bool
}

// OCC is the optimistic validation variant (§4.3.c): reads and writes
// proceed unchecked during the transaction, and the entire read-set is
// validated against concurrently committed write-sets at commit time.
// Validate never blocks or dies early — Die is only possible from
// End(tid, Committed), where it re-appears as ValidationFailedError; the
// coordinator treats that identically to a Die verdict at commit.
type OCC struct {
	mu          sync.Mutex
	nextTID     int64
	nextSeq     int64
	active      map[int64]*occTxn
	history     []committedWrite
	activeCount int
}

// NewOCC constructs an empty optimistic-validation manager.
func NewOCC() *OCC {
	return &OCC{active: make(map[int64]*occTxn)}
}

func (o *OCC) Begin(clientID string) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextTID++
	o.nextSeq++
	o.active[o.nextTID] = &occTxn{
		readSet:  make(map[string]bool),
		writeSet: make(map[string]bool),
		startAt:  o.nextSeq,
	}
	o.activeCount++
	return o.nextTID
}

// Validate records the access into the transaction's read/write set and
// always grants; conflicts are only detected at commit.
func (o *OCC) Validate(tid int64, table string, rowKey any, mode Mode) Verdict {
	o.mu.Lock()
	defer o.mu.Unlock()

	txn, ok := o.active[tid]
	if !ok {
		return Die
	}
	k := table + "/" + sprintKey(rowKey)
	if mode == Read {
		txn.readSet[k] = true
	} else {
		txn.writeSet[k] = true
	}
	return Grant
}

// End validates on commit: if any transaction that committed after tid
// began wrote something tid read, tid's read-set is stale and validation
// fails. On success (or on abort), the transaction's write-set is
// published to history and its state is discarded.
func (o *OCC) End(tid int64, outcome Outcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	txn, ok := o.active[tid]
	if !ok {
		return nil
	}
	delete(o.active, tid)
	o.activeCount--

	if outcome != Committed {
		return nil
	}

	for _, cw := range o.history {
		if cw.seq <= txn.startAt {
			continue
		}
		for k := range txn.readSet {
			if cw.writeSet[k] {
				return &ValidationFailedError{TID: tid}
			}
		}
	}

	o.nextSeq++
	o.history = append(o.history, committedWrite{seq: o.nextSeq, writeSet: txn.writeSet})
	return nil
}

func (o *OCC) ChangeAlgorithm(variant string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.activeCount > 0 {
		return &BusyError{ActiveCount: o.activeCount}
	}
	return nil
}
