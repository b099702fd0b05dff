package room

import (
	"github.com/coder/websocket"

	"github.com/collabtext/collabd/internal/wire"
)

// Join opens a new session in the room: assigns it a siteId, sends
// setSiteId, replays every known presence, and pushes operations at or
// after joinOffset (covering the race between the bootstrap read and
// session establishment). The session starts in StateAwaitingHello.
func (r *Room) Join(conn *websocket.Conn, joinOffset int) *Session {
	var sess *Session
	r.do(func() {
		siteID := r.nextSiteID
		r.nextSiteID++

		sess = newSession(siteID, joinOffset, conn)
		r.sessions[siteID] = sess
		r.touchActivity()

		sess.enqueue(wire.NewSetSiteID(siteID))
		for otherID, p := range r.presence {
			sess.enqueue(wire.NewSitePresence(otherID, p.Name, p.Visible))
		}
		backlog := r.Log.Since(joinOffset)
		if len(backlog) > 0 {
			sess.enqueue(wire.NewCrdtEvents(backlog))
		}

		sess.setState(StateAwaitingHello)
	})
	return sess
}

// HandleCrdtEvents appends an inbound operation batch from siteID to the
// log and broadcasts it to every other non-closed session (including
// sessions still awaiting their hello). If the log has
// grown past its configured threshold, compaction is triggered.
func (r *Room) HandleCrdtEvents(siteID int64, events []wire.Op) {
	r.do(func() {
		sess, ok := r.sessions[siteID]
		if !ok || sess.State() == StateClosed {
			return
		}
		r.activateLocked(sess)
		r.touchActivity()

		for _, op := range events {
			if _, err := r.Log.Append(op); err != nil {
				r.logger.Error("append operation", "room", r.Name, "error", err)
				return
			}
		}
		r.broadcast(wire.NewCrdtEvents(events), siteID)

		// Runs on the mailbox goroutine, which beginCompaction requires.
		if r.Log.ExceedsThreshold(r.cfg.LogBytesThreshold, r.cfg.LogOpsThreshold) {
			r.beginCompaction()
		}
	})
}

// HandleSitePresence records an inbound presence update from siteID and
// broadcasts it to every other non-closed session.
func (r *Room) HandleSitePresence(siteID int64, name string, visible bool) {
	r.do(func() {
		sess, ok := r.sessions[siteID]
		if !ok || sess.State() == StateClosed {
			return
		}
		r.activateLocked(sess)
		r.touchActivity()

		sess.Name = name
		r.presence[siteID] = presenceEntry{Name: name, Visible: visible}
		r.broadcast(wire.NewSitePresence(siteID, name, visible), siteID)
	})
}

func (r *Room) activateLocked(sess *Session) {
	if sess.State() == StateAwaitingHello {
		sess.setState(StateActive)
	}
}

// Leave removes siteID's session from the room and announces its
// departure. Safe to call more than once; a repeat call is a no-op.
func (r *Room) Leave(siteID int64) {
	r.do(func() {
		r.removeSessionLocked(siteID)
	})
}
