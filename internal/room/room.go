// Package room implements the per-room session manager: site ID
// assignment, the session protocol state machine, operation fan-out,
// presence, heartbeats, and the compaction handover.
package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/collabtext/collabd/internal/crdt"
	"github.com/collabtext/collabd/internal/roomlog"
	"github.com/collabtext/collabd/internal/wire"
)

// Config holds the per-room tunables sourced from server configuration.
// Persist, if set, is invoked with the compacted log before clients are
// allowed back in, so a crash right after compaction cannot resurrect
// the pre-compaction operations from an older snapshot.
type Config struct {
	HeartbitInterval  time.Duration
	DocumentLimit     int
	LogBytesThreshold int64
	LogOpsThreshold   int
	Persist           func(name string, ops []wire.Op, created time.Time) error
}

// Room is the unit of shared mutable state: a Log, a set of live
// Sessions, a presence table, a next-siteId counter, and
// creation/activity timestamps. All of it is owned by the single
// goroutine draining the room's mailbox (Run); every other goroutine
// mutates the room only by submitting a closure through do.
type Room struct {
	Name   string
	Log    *roomlog.Log
	cfg    Config
	logger *slog.Logger

	created      time.Time
	lastActivity time.Time
	nextSiteID   int64
	sessions     map[int64]*Session
	presence     map[int64]presenceEntry

	cmds chan func()
	done chan struct{}
}

// New creates a Room. A non-empty greeting is written into the fresh log
// as a chain of insert operations, so the first participant bootstraps
// into a document that already explains the retention policy. Run must
// be launched in its own goroutine before the room is usable.
func New(name string, cfg Config, logger *slog.Logger, greeting string) *Room {
	now := time.Now()
	r := &Room{
		Name:         name,
		Log:          roomlog.New(),
		cfg:          cfg,
		logger:       logger,
		created:      now,
		lastActivity: now,
		sessions:     make(map[int64]*Session),
		presence:     make(map[int64]presenceEntry),
		cmds:         make(chan func(), 64),
		done:         make(chan struct{}),
	}
	if greeting != "" {
		r.seedGreeting(greeting)
	}
	return r
}

// seedGreeting materializes greeting as the room's initial operations,
// stamped by a server-held replica with siteId 0.
func (r *Room) seedGreeting(greeting string) {
	replica := crdt.NewReplica(0)
	ops, err := replica.ApplyLocal(0, 0, greeting, 0)
	if err != nil {
		r.logger.Error("seed greeting", "room", r.Name, "error", err)
		return
	}
	for _, op := range wire.FromOperations(ops) {
		if _, err := r.Log.Append(op); err != nil {
			r.logger.Error("seed greeting", "room", r.Name, "error", err)
			return
		}
	}
}

// Run drains the mailbox, serializing every mutation to the room's log,
// session set, presence table, and siteId counter, until ctx is
// canceled. It also drives the heartbeat ticker. Run must be called
// exactly once.
func (r *Room) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbitInterval)
	defer ticker.Stop()
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			for _, sess := range r.sessions {
				sess.Close()
			}
			return
		case cmd := <-r.cmds:
			cmd()
		case <-ticker.C:
			r.tickHeartbeat()
		}
	}
}

// do submits fn to the mailbox and blocks until it has run, or until the
// room has already stopped.
func (r *Room) do(fn func()) bool {
	reply := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(reply) }:
	case <-r.done:
		return false
	}
	select {
	case <-reply:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) touchActivity() {
	r.lastActivity = time.Now()
}

// CreatedAt returns the room's creation timestamp.
func (r *Room) CreatedAt() time.Time {
	var t time.Time
	r.do(func() { t = r.created })
	return t
}

// LastActivity returns the room's last-activity timestamp, used by the
// Registry sweeper to decide idle eviction.
func (r *Room) LastActivity() time.Time {
	var t time.Time
	r.do(func() { t = r.lastActivity })
	return t
}

// SessionCount reports the number of live sessions.
func (r *Room) SessionCount() int {
	var n int
	r.do(func() { n = len(r.sessions) })
	return n
}

// Settings returns the session parameters handed to clients at
// bootstrap.
func (r *Room) Settings() wire.Settings {
	return wire.Settings{
		HeartbitInterval: int(r.cfg.HeartbitInterval / time.Second),
		DocumentLimit:    r.cfg.DocumentLimit,
	}
}

// Shutdown closes every live session, announcing the room is going away.
// Used by the Registry sweeper (eviction).
func (r *Room) Shutdown() {
	r.do(func() {
		for siteID := range r.sessions {
			r.removeSessionLocked(siteID)
		}
	})
}

func (r *Room) removeSessionLocked(siteID int64) {
	sess, ok := r.sessions[siteID]
	if !ok {
		return
	}
	sess.Close()
	delete(r.sessions, siteID)
	delete(r.presence, siteID)
	r.broadcast(wire.NewSiteDisconnected(siteID), siteID)
}

// broadcast delivers msg to every non-closed session other than
// exceptSiteID. Sessions still awaiting their hello are included: an
// operation appended between a session's join and its first inbound
// message must still reach it, or its replica diverges.
func (r *Room) broadcast(msg any, exceptSiteID int64) {
	for siteID, sess := range r.sessions {
		if siteID == exceptSiteID || sess.State() == StateClosed {
			continue
		}
		sess.enqueue(msg)
	}
}

func (r *Room) tickHeartbeat() {
	deadline := 2 * r.cfg.HeartbitInterval
	var dead []int64
	for siteID, sess := range r.sessions {
		switch {
		case sess.State() == StateClosed:
			dead = append(dead, siteID)
		case sess.idleSince() > deadline:
			r.logger.Info("session heartbeat timeout", "room", r.Name, "site_id", siteID)
			dead = append(dead, siteID)
		case sess.State() == StateActive:
			sess.enqueue(wire.NewHeartbit())
		}
	}
	for _, siteID := range dead {
		r.removeSessionLocked(siteID)
	}
}
