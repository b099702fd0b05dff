package room

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/collabtext/collabd/internal/crdt"
	"github.com/collabtext/collabd/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRoom(t *testing.T, cfg Config) *Room {
	t.Helper()
	if cfg.HeartbitInterval == 0 {
		cfg.HeartbitInterval = time.Hour
	}
	r := New("testroom", cfg, testLogger(), "")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	return r
}

// recv reads and decodes the next message enqueued for sess, failing the
// test if none arrives within a short deadline.
func recv(t *testing.T, sess *Session) any {
	t.Helper()
	select {
	case data := <-sess.outbound:
		msg, err := wire.Decode(data)
		if err != nil {
			t.Fatalf("decode outbound message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a message")
		return nil
	}
}

func TestRoom_JoinAssignsSequentialSiteIDs(t *testing.T) {
	r := newTestRoom(t, Config{})

	a := r.Join(nil, 0)
	b := r.Join(nil, 0)

	if a.SiteID != 0 || b.SiteID != 1 {
		t.Fatalf("siteIDs = %d, %d, want 0, 1", a.SiteID, b.SiteID)
	}

	if msg := recv(t, a); msg.(wire.SetSiteID).SiteID != 0 {
		t.Errorf("expected setSiteId{0}, got %+v", msg)
	}
}

func TestRoom_JoinReplaysBacklogSinceOffset(t *testing.T) {
	r := newTestRoom(t, Config{})

	first := r.Join(nil, 0)
	recv(t, first) // setSiteId

	char := "a"
	op := wire.Op{Type: wire.OpKindInsert, GID: wire.GID{Counter: 1, SiteID: first.SiteID}, Char: &char}
	r.HandleCrdtEvents(first.SiteID, []wire.Op{op})

	second := r.Join(nil, 0)
	recv(t, second) // setSiteId
	msg := recv(t, second)
	events, ok := msg.(wire.CrdtEvents)
	if !ok || len(events.Events) != 1 {
		t.Fatalf("expected backlog crdtEvents with 1 op, got %+v", msg)
	}
}

func TestRoom_CrdtEventsFanOutExcludesSender(t *testing.T) {
	r := newTestRoom(t, Config{})

	a := r.Join(nil, 0)
	recv(t, a) // setSiteId
	b := r.Join(nil, 0)
	recv(t, b) // setSiteId

	char := "x"
	op := wire.Op{Type: wire.OpKindInsert, GID: wire.GID{Counter: 1, SiteID: a.SiteID}, Char: &char}
	r.HandleCrdtEvents(a.SiteID, []wire.Op{op})

	msg := recv(t, b)
	events, ok := msg.(wire.CrdtEvents)
	if !ok || len(events.Events) != 1 {
		t.Fatalf("expected b to receive the broadcast crdtEvents, got %+v", msg)
	}

	select {
	case data := <-a.outbound:
		t.Fatalf("sender should not be echoed its own operation, got %v", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoom_LeaveBroadcastsSiteDisconnected(t *testing.T) {
	r := newTestRoom(t, Config{})

	a := r.Join(nil, 0)
	recv(t, a)
	b := r.Join(nil, 0)
	recv(t, b)

	r.Leave(a.SiteID)

	msg := recv(t, b)
	disc, ok := msg.(wire.SiteDisconnected)
	if !ok || disc.SiteID != a.SiteID {
		t.Fatalf("expected siteDisconnected for %d, got %+v", a.SiteID, msg)
	}
	if r.SessionCount() != 1 {
		t.Errorf("SessionCount() = %d, want 1", r.SessionCount())
	}
}

func TestRoom_CompactionTriggersOnOpsThreshold(t *testing.T) {
	r := newTestRoom(t, Config{LogOpsThreshold: 3})

	a := r.Join(nil, 0)
	recv(t, a)

	char := "a"
	for i := 0; i < 4; i++ {
		op := wire.Op{Type: wire.OpKindInsert, GID: wire.GID{Counter: int64(i + 1), SiteID: a.SiteID}, Char: &char}
		r.HandleCrdtEvents(a.SiteID, []wire.Op{op})
	}

	// a is the sender of every crdtEvents broadcast above and so is
	// excluded from receiving them; the next message it sees should be
	// the compactionRequired control message triggered by the 4th append
	// crossing the 3-op threshold.
	msg := recv(t, a)
	if _, ok := msg.(wire.CompactionRequired); !ok {
		t.Fatalf("expected compactionRequired, got %+v", msg)
	}
}

// A server-initiated close must make WritePump return an error so the
// paired ReadPump's errgroup context is canceled and its blocked read
// unblocks, instead of leaking both goroutines until the peer hangs up.
func TestSession_CloseUnblocksWritePump(t *testing.T) {
	sess := newSession(0, 0, nil)

	done := make(chan error, 1)
	go func() {
		done <- sess.WritePump(context.Background())
	}()

	sess.Close()

	select {
	case err := <-done:
		if err != ErrSessionClosed {
			t.Errorf("WritePump returned %v, want ErrSessionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("WritePump did not return after Close")
	}
}

func TestRoom_CompactionOfFullyDeletedTextYieldsEmptyLog(t *testing.T) {
	r := newTestRoom(t, Config{LogOpsThreshold: 3})

	a := r.Join(nil, 0)
	recv(t, a) // setSiteId

	source := crdt.NewReplica(a.SiteID)
	insertOps, err := source.ApplyLocal(0, 0, "ab", a.SiteID)
	if err != nil {
		t.Fatalf("ApplyLocal insert: %v", err)
	}
	deleteOps, err := source.ApplyLocal(0, 2, "", a.SiteID)
	if err != nil {
		t.Fatalf("ApplyLocal delete: %v", err)
	}
	r.HandleCrdtEvents(a.SiteID, wire.FromOperations(append(insertOps, deleteOps...)))

	if n := r.Log.Len(); n != 0 {
		t.Errorf("compacted log has %d ops, want 0 (every character deleted)", n)
	}
}

func TestRoom_GreetingSeedsLog(t *testing.T) {
	r := New("testroom", Config{HeartbitInterval: time.Hour}, testLogger(), "hi")

	ops, err := wire.ToOperations(r.Log.Since(0))
	if err != nil {
		t.Fatalf("decode seeded log: %v", err)
	}
	replica := crdt.NewReplica(1)
	if _, err := replica.ApplyRemote(ops); err != nil {
		t.Fatalf("replay seeded log: %v", err)
	}
	if replica.Text() != "hi" {
		t.Errorf("seeded text = %q, want %q", replica.Text(), "hi")
	}
}

func TestRoom_CompactionPreservesTextAndPersists(t *testing.T) {
	var persisted []wire.Op
	cfg := Config{
		LogOpsThreshold: 3,
		Persist: func(name string, ops []wire.Op, created time.Time) error {
			persisted = ops
			return nil
		},
	}
	r := newTestRoom(t, cfg)

	a := r.Join(nil, 0)
	recv(t, a) // setSiteId

	// Insert "abc", then delete the middle character: four operations,
	// crossing the 3-op threshold and triggering compaction inline.
	source := crdt.NewReplica(a.SiteID)
	insertOps, err := source.ApplyLocal(0, 0, "abc", a.SiteID)
	if err != nil {
		t.Fatalf("ApplyLocal insert: %v", err)
	}
	deleteOps, err := source.ApplyLocal(1, 2, "", a.SiteID)
	if err != nil {
		t.Fatalf("ApplyLocal delete: %v", err)
	}
	r.HandleCrdtEvents(a.SiteID, wire.FromOperations(append(insertOps, deleteOps...)))

	compacted, err := wire.ToOperations(r.Log.Since(0))
	if err != nil {
		t.Fatalf("decode compacted log: %v", err)
	}
	if len(compacted) != 2 {
		t.Fatalf("compacted log has %d ops, want 2 (tombstones discarded)", len(compacted))
	}
	replica := crdt.NewReplica(9)
	if _, err := replica.ApplyRemote(compacted); err != nil {
		t.Fatalf("replay compacted log: %v", err)
	}
	if replica.Text() != "ac" {
		t.Errorf("compacted text = %q, want %q", replica.Text(), "ac")
	}

	if len(persisted) != 2 {
		t.Errorf("persisted %d ops, want the 2-op compacted log", len(persisted))
	}
	if r.SessionCount() != 0 {
		t.Errorf("SessionCount() after compaction = %d, want 0", r.SessionCount())
	}
}
