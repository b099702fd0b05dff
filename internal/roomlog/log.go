// Package roomlog implements the append-only per-room operation log:
// dense 0-based offsets, offset-indexed reads, and the byte/operation
// counters the Hub watches to decide when a room needs compaction.
package roomlog

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/collabtext/collabd/internal/wire"
)

// Log is the append-only Operation log for one room. Callers never need
// to take their own lock around a Log: every method is self-contained.
// In practice a Log is only ever touched from the single goroutine that
// owns its Room's mailbox (see internal/room), so the mutex here exists
// for defense against a future caller forgetting that rule, not because
// concurrent access is expected.
type Log struct {
	mu       sync.Mutex
	ops      []wire.Op
	byteSize int64
}

// New returns an empty Log.
func New() *Log {
	return &Log{}
}

// Append adds op to the end of the log and returns the offset it was
// written at. Offsets are dense and monotonic.
func (l *Log) Append(op wire.Op) (int, error) {
	data, err := wire.Encode(op)
	if err != nil {
		return 0, fmt.Errorf("roomlog: append: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	offset := len(l.ops)
	l.ops = append(l.ops, op)
	l.byteSize += int64(len(data))
	return offset, nil
}

// Since returns every Operation at or after offset, in log order. A
// negative offset is treated as 0; an offset past the end of the log
// returns nil.
func (l *Log) Since(offset int) []wire.Op {
	l.mu.Lock()
	defer l.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(l.ops) {
		return nil
	}
	out := make([]wire.Op, len(l.ops)-offset)
	copy(out, l.ops[offset:])
	return out
}

// Len returns the number of operations in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// Bytes returns the running total of JSON-encoded operation size.
func (l *Log) Bytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byteSize
}

// ExceedsThreshold reports whether the log has crossed either
// configured compaction ceiling. A non-positive bound disables that
// check.
func (l *Log) ExceedsThreshold(maxBytes int64, maxOps int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if maxBytes > 0 && l.byteSize > maxBytes {
		return true
	}
	if maxOps > 0 && len(l.ops) > maxOps {
		return true
	}
	return false
}

// Reset replaces the log's contents wholesale — used by compaction to
// install the minimal operation set that reproduces the current text.
func (l *Log) Reset(ops []wire.Op) error {
	var size int64
	for _, op := range ops {
		data, err := wire.Encode(op)
		if err != nil {
			return fmt.Errorf("roomlog: reset: %w", err)
		}
		size += int64(len(data))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append([]wire.Op(nil), ops...)
	l.byteSize = size
	return nil
}

// String renders a human-readable summary, used when logging a
// compaction decision.
func (l *Log) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("%d ops, %s", len(l.ops), humanize.Bytes(uint64(l.byteSize)))
}
