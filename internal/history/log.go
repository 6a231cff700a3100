// Package history implements the per-room operation log with linear
// undo/redo semantics.
package history

import (
	"sync"
	"time"
)

// Log is a linear history of operations with a single current-index
// pointer. Operations past the index are "future" entries reachable only
// via Redo, and are discarded the moment a new operation is added.
//
// The index-over-array shape keeps undo and redo symmetric: replaying
// everything up to the index is the one rendering primitive, used both for
// fresh joiners and for undo/redo broadcasts.
type Log struct {
	mu      sync.Mutex
	ops     []*Operation
	current int // -1 .. len(ops)-1
	now     func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		ops:     make([]*Operation, 0),
		current: -1,
		now:     time.Now,
	}
}

// Add stores op and returns its assigned id. Any future entries left over
// from undos are truncated first, irrevocably. IDs are position-based:
// the id of a new operation is its array position at append time.
func (l *Log) Add(op *Operation) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current < len(l.ops)-1 {
		l.ops = l.ops[:l.current+1]
	}

	op.ID = len(l.ops)
	op.Kind = KindStroke
	op.CreatedAt = l.now()
	l.ops = append(l.ops, op)
	l.current = len(l.ops) - 1

	return op.ID
}

// Undo steps the index back one operation. It returns the operation that
// was undone and the new index, or ok=false when there is nothing to undo.
// The operation stays in storage and remains redoable.
func (l *Log) Undo() (op *Operation, newIndex int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current < 0 {
		return nil, l.current, false
	}

	op = l.ops[l.current]
	l.current--
	return op, l.current, true
}

// Redo re-applies the next future operation. It returns the operation now
// active and the new index, or ok=false when there is nothing to redo.
func (l *Log) Redo() (op *Operation, newIndex int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= len(l.ops)-1 {
		return nil, l.current, false
	}

	l.current++
	return l.ops[l.current], l.current, true
}

// Snapshot returns the active history: operations[0..currentIndex] and the
// index itself. This is exactly what a fresh renderer must draw, in order.
func (l *Log) Snapshot() ([]*Operation, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ops := make([]*Operation, l.current+1)
	copy(ops, l.ops[:l.current+1])
	return ops, l.current
}

// Clear resets the log to empty. There is no undo of a clear.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ops = make([]*Operation, 0)
	l.current = -1
}

// Len returns the total number of stored operations, future entries
// included.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// CurrentIndex returns the index of the last active operation, or -1.
func (l *Log) CurrentIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// ActiveCount returns the number of operations a renderer should currently
// show.
func (l *Log) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current + 1
}
