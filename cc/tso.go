package cc

import "sync"

// object tracks the read/write timestamps used by timestamp ordering.
type object struct {
	readTS  int64
	writeTS int64
}

// TSO is the timestamp-ordering variant (§4.3.b). Each transaction's tid
// doubles as its start timestamp. There are no waits: a transaction
// either proceeds in timestamp order or dies immediately, trading a
// higher abort rate for the absence of blocking.
type TSO struct {
	mu          sync.Mutex
	nextTID     int64
	objects     map[string]*object // keyed by table+"/"+rowKey
	activeCount int
}

// NewTSO constructs an empty timestamp-ordering manager.
func NewTSO() *TSO {
	return &TSO{objects: make(map[string]*object)}
}

func (t *TSO) key(table string, rowKey any) string {
	return table + "/" + toKeyString(rowKey)
}

// Begin allocates the next tid, which also serves as the transaction's
// start timestamp.
func (t *TSO) Begin(clientID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextTID++
	t.activeCount++
	return t.nextTID
}

// Validate implements the read/write rules from §4.3.b.
func (t *TSO) Validate(tid int64, table string, rowKey any, mode Mode) Verdict {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := t.key(table, rowKey)
	obj, ok := t.objects[k]
	if !ok {
		obj = &object{}
		t.objects[k] = obj
	}

	ts := tid
	if mode == Read {
		if ts < obj.writeTS {
			return Die
		}
		if ts > obj.readTS {
			obj.readTS = ts
		}
		return Grant
	}

	if ts < obj.readTS || ts < obj.writeTS {
		return Die
	}
	obj.writeTS = ts
	return Grant
}

// End is a no-op for TSO beyond bookkeeping: there are no locks to
// release since conflicts are resolved eagerly at validation time.
func (t *TSO) End(tid int64, outcome Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeCount--
	return nil
}

func (t *TSO) ChangeAlgorithm(variant string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activeCount > 0 {
		return &BusyError{ActiveCount: t.activeCount}
	}
	return nil
}

func toKeyString(v any) string {
	if v == nil {
		return "<table>"
	}
	return sprintKey(v)
}
