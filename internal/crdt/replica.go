package crdt

import (
	"strings"
	"sync"
)

// Replica is one site's materialized CRDT state: an ordered sequence of
// CharEntry, an applied-operation set keyed by (operationKind, siteID,
// counter) for idempotent deduplication, and the maximum counter observed
// anywhere. The materialized text is the concatenation of the char field
// of every visible entry in sequence order.
//
// The sequence order is deterministic given the same multiset of applied
// operations regardless of arrival order — see integrate for the
// Replicated Growable Array tie-break that makes this true.
type Replica struct {
	mu      sync.Mutex
	siteID  int64
	entries []CharEntry
	applied map[dedupeKey]struct{}

	maxCounter int64

	// Position cache: cacheLen is the number of visible entries among
	// entries[0:cacheIdx]. Kept in sync on every mutation; a structural
	// insert before the cache point invalidates it (reset to 0,0), a
	// delete before the cache point is corrected in place (decrement),
	// since a delete never shifts indices. lastEditIdx is a starting
	// hint for scans that can't use the cache directly.
	cacheIdx    int
	cacheLen    int
	lastEditIdx int
}

// NewReplica creates an empty Replica for the given site.
func NewReplica(siteID int64) *Replica {
	return &Replica{
		siteID:  siteID,
		applied: make(map[dedupeKey]struct{}),
	}
}

// SiteID returns the site this replica was created for.
func (r *Replica) SiteID() int64 {
	return r.siteID
}

// Text returns the concatenation of every visible entry's character, in
// sequence order.
func (r *Replica) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, e := range r.entries {
		if e.Visible {
			b.WriteRune(e.Char)
		}
	}
	return b.String()
}

// Len returns the number of visible characters.
func (r *Replica) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visibleLen()
}

func (r *Replica) visibleLen() int {
	n := 0
	for _, e := range r.entries {
		if e.Visible {
			n++
		}
	}
	return n
}

// MaxCounter returns the highest GlobalID counter this replica has
// observed, locally or remotely.
func (r *Replica) MaxCounter() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxCounter
}

// VisibleEntries returns a copy of every visible CharEntry, in sequence
// order. Used by compaction to rebuild the minimal operation set that
// reproduces the current text.
func (r *Replica) VisibleEntries() []CharEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CharEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Visible {
			out = append(out, e)
		}
	}
	return out
}

// ApplyRemote integrates a batch of foreign Operations into the replica
// and returns the sequence of positional text changes the local view must
// reflect. Duplicate operations (already in the applied set) are ignored.
// Order within the batch is honored: operations are integrated one at a
// time, in the order given. On the first Operation that fails, the
// updates produced by the operations before it are still returned
// alongside the error, since those have already been committed to the
// replica's state.
func (r *Replica) ApplyRemote(ops []Operation) ([]PlainUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updates []PlainUpdate
	for _, op := range ops {
		upd, applied, err := r.integrate(op)
		if err != nil {
			return compactUpdates(updates), err
		}
		if applied {
			updates = append(updates, upd)
		}
	}
	return compactUpdates(updates), nil
}

// ApplyLocal translates a positional edit — delete the substring
// [from,to) of the visible text and insert value at position from — into
// emittable Operations, applying them locally as a side effect. Fails
// with a KindInvalidRange error if from > to or the range exceeds the
// visible length.
func (r *Replica) ApplyLocal(from, to int, value string, siteID int64) ([]Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if from < 0 || to < from {
		return nil, newInvalidRange("from=%d to=%d: from must be >= 0 and <= to", from, to)
	}
	visLen := r.visibleLen()
	if to > visLen {
		return nil, newInvalidRange("to=%d exceeds visible length %d", to, visLen)
	}

	var ops []Operation

	for i := 0; i < to-from; i++ {
		idx := r.indexForVisiblePos(from)
		id := r.entries[idx].ID
		op := Operation{Kind: OpDelete, ID: id}
		if _, _, err := r.integrate(op); err != nil {
			// Can't happen: id was just read from the live entry.
			return ops, err
		}
		ops = append(ops, op)
	}

	var afterID *GlobalID
	if from > 0 {
		idx := r.indexForVisiblePos(from - 1)
		id := r.entries[idx].ID
		afterID = &id
	}

	for _, c := range value {
		r.maxCounter++
		gid := GlobalID{Counter: r.maxCounter, SiteID: siteID}
		op := Operation{Kind: OpInsert, ID: gid, Char: c, After: afterID}
		if _, _, err := r.integrate(op); err != nil {
			// Can't happen: gid is fresh and afterID (if any) was just resolved.
			return ops, err
		}
		ops = append(ops, op)
		idCopy := gid
		afterID = &idCopy
	}

	return ops, nil
}

// integrate applies a single Operation — remote or freshly locally
// generated — to the replica. It returns the PlainUpdate produced (valid
// only when applied is true), whether the operation actually changed
// state (false for a duplicate or an idempotent repeat delete), and an
// error if the operation references an unknown GlobalID.
func (r *Replica) integrate(op Operation) (update PlainUpdate, applied bool, err error) {
	switch op.Kind {
	case OpInsert:
		return r.integrateInsert(op)
	case OpDelete:
		return r.integrateDelete(op)
	default:
		return PlainUpdate{}, false, newStateCorrupted("unknown operation kind %v", op.Kind)
	}
}

func (r *Replica) integrateInsert(op Operation) (PlainUpdate, bool, error) {
	key := op.dedupeKey()
	if _, ok := r.applied[key]; ok {
		return PlainUpdate{}, false, nil
	}

	p := -1
	if op.After != nil {
		idx, ok := r.findIndexByID(*op.After)
		if !ok {
			return PlainUpdate{}, false, newStateCorrupted("insert %s: unknown afterGid %s", op.ID, *op.After)
		}
		p = idx
	}

	insertAt := p + 1
	for insertAt < len(r.entries) && r.entries[insertAt].ID.Greater(op.ID) {
		insertAt++
	}

	r.invalidateBefore(insertAt)
	prefixLen := r.prefixLen(insertAt)

	entry := CharEntry{ID: op.ID, Char: op.Char, Visible: true}
	r.entries = append(r.entries, CharEntry{})
	copy(r.entries[insertAt+1:], r.entries[insertAt:])
	r.entries[insertAt] = entry

	r.applied[key] = struct{}{}
	if op.ID.Counter > r.maxCounter {
		r.maxCounter = op.ID.Counter
	}

	r.cacheIdx = insertAt + 1
	r.cacheLen = prefixLen + 1
	r.lastEditIdx = insertAt

	return PlainUpdate{From: prefixLen, To: prefixLen, Value: string(op.Char)}, true, nil
}

func (r *Replica) integrateDelete(op Operation) (PlainUpdate, bool, error) {
	key := op.dedupeKey()
	if _, ok := r.applied[key]; ok {
		return PlainUpdate{}, false, nil
	}

	idx, ok := r.findIndexByID(op.ID)
	if !ok {
		return PlainUpdate{}, false, newStateCorrupted("delete: unknown gid %s", op.ID)
	}

	r.applied[key] = struct{}{}
	r.lastEditIdx = idx

	if !r.entries[idx].Visible {
		return PlainUpdate{}, false, nil
	}

	prefixLen := r.prefixLen(idx)
	r.entries[idx].Visible = false
	if idx < r.cacheIdx {
		r.cacheLen--
	}

	return PlainUpdate{From: prefixLen, To: prefixLen + 1, Value: ""}, true, nil
}

// findIndexByID locates the entries index of the entry with the given
// id, scanning outward from lastEditIdx so that edits clustered near the
// same spot (the common case) resolve in roughly constant time.
func (r *Replica) findIndexByID(id GlobalID) (int, bool) {
	n := len(r.entries)
	if n == 0 {
		return 0, false
	}
	start := r.lastEditIdx
	if start < 0 || start >= n {
		start = 0
	}
	for i := 0; i < n; i++ {
		fwd := start + i
		if fwd < n && r.entries[fwd].ID == id {
			return fwd, true
		}
		back := start - i
		if back >= 0 && back < n && r.entries[back].ID == id {
			return back, true
		}
	}
	return 0, false
}

// prefixLen returns the number of visible entries among entries[0:uptoIdx],
// using and then updating the position cache.
func (r *Replica) prefixLen(uptoIdx int) int {
	if uptoIdx == r.cacheIdx {
		return r.cacheLen
	}
	start, count := 0, 0
	if uptoIdx > r.cacheIdx {
		start, count = r.cacheIdx, r.cacheLen
	}
	for i := start; i < uptoIdx; i++ {
		if r.entries[i].Visible {
			count++
		}
	}
	r.cacheIdx, r.cacheLen = uptoIdx, count
	return count
}

// indexForVisiblePos returns the entries index of the pos-th visible
// entry (0-based), skipping any tombstones sitting at the boundary.
// Callers must ensure pos is within [0, visibleLen()).
func (r *Replica) indexForVisiblePos(pos int) int {
	start, count := 0, 0
	if r.cacheLen <= pos && r.cacheIdx <= len(r.entries) {
		start, count = r.cacheIdx, r.cacheLen
	}
	for i := start; i < len(r.entries); i++ {
		if r.entries[i].Visible {
			if count == pos {
				return i
			}
			count++
		}
	}
	return len(r.entries)
}

// invalidateBefore discards the position cache if a structural insert at
// entries-index at would shift the indices the cache describes.
func (r *Replica) invalidateBefore(at int) {
	if at <= r.cacheIdx {
		r.cacheIdx = 0
		r.cacheLen = 0
	}
}

// compactUpdates merges consecutive emitted plain updates that are
// textually adjacent — the second starts exactly where the first ended —
// into one, reducing downstream editor churn.
func compactUpdates(updates []PlainUpdate) []PlainUpdate {
	if len(updates) < 2 {
		return updates
	}
	merged := make([]PlainUpdate, 0, len(updates))
	cur := updates[0]
	for _, next := range updates[1:] {
		if cur.To == next.From && cur.From <= next.From {
			cur.To = next.To
			cur.Value += next.Value
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	return merged
}
