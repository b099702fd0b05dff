package room

import (
	"github.com/collabtext/collabd/internal/crdt"
	"github.com/collabtext/collabd/internal/wire"
)

// beginCompaction executes the compaction protocol: broadcast
// compactionRequired and close every session, replay the full log into a
// fresh server-side Replica, then rewrite the log to the minimal
// operation set that reproduces the current text. Must run on the
// mailbox goroutine.
func (r *Room) beginCompaction() {
	r.logger.Info("compaction starting", "room", r.Name, "log", r.Log.String())

	r.broadcast(wire.NewCompactionRequired(), -1)
	for _, sess := range r.sessions {
		sess.Close()
	}
	r.sessions = make(map[int64]*Session)
	r.presence = make(map[int64]presenceEntry)

	ops, err := wire.ToOperations(r.Log.Since(0))
	if err != nil {
		r.logger.Error("compaction: decode log", "room", r.Name, "error", err)
		return
	}

	replica := crdt.NewReplica(0)
	if _, err := replica.ApplyRemote(ops); err != nil {
		r.logger.Error("compaction: replay log", "room", r.Name, "error", err)
		return
	}

	minimal := minimalOperations(replica)
	if err := r.Log.Reset(wire.FromOperations(minimal)); err != nil {
		r.logger.Error("compaction: reset log", "room", r.Name, "error", err)
		return
	}

	// The compacted log must reach stable storage before clients are
	// allowed back in; otherwise a crash now would restore the
	// pre-compaction log from an older snapshot.
	if r.cfg.Persist != nil {
		if err := r.cfg.Persist(r.Name, r.Log.Since(0), r.created); err != nil {
			r.logger.Error("compaction: persist log", "room", r.Name, "error", err)
		}
	}

	// siteId allocation after compaction resets rather than carries the
	// high-water mark forward: every client must reconnect once
	// compactionRequired lands, so no live siteId needs to survive.
	r.nextSiteID = 0

	r.logger.Info("compaction complete", "room", r.Name, "log", r.Log.String())
}

// minimalOperations rebuilds the minimal Insert-only operation set that
// reproduces replica's current visible text: one Insert per visible
// CharEntry, each chained to the previous entry's id. All tombstones and
// their generating operations are discarded.
func minimalOperations(replica *crdt.Replica) []crdt.Operation {
	entries := replica.VisibleEntries()
	ops := make([]crdt.Operation, len(entries))

	var prev *crdt.GlobalID
	for i, e := range entries {
		op := crdt.Operation{Kind: crdt.OpInsert, ID: e.ID, Char: e.Char, After: prev}
		ops[i] = op
		id := e.ID
		prev = &id
	}
	return ops
}
