package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/collabtext/collabd/internal/registry"
	"github.com/collabtext/collabd/internal/room"
	"github.com/collabtext/collabd/internal/wire"
)

// handleSession implements the persistent session endpoint at
// /resource/room/{roomId}/ws?offset=N. It upgrades the connection,
// joins the room (assigning a siteId and replaying the backlog since
// offset), then runs a paired read/write pump until either side fails or
// the room closes the session (heartbeat timeout, compaction, eviction).
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	rm, err := s.registry.Get(roomID)
	if err != nil {
		if err == registry.ErrRoomNotFound {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil && n >= 0 {
			offset = n
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "room", roomID, "error", err)
		return
	}
	conn.SetReadLimit(1 << 20)
	defer conn.CloseNow()

	sess := rm.Join(conn, offset)
	s.logger.Info("session opened", "room", roomID, "site_id", sess.SiteID, "session", sess.ID)

	ctx := r.Context()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.WritePump(gctx)
	})
	g.Go(func() error {
		return sess.ReadPump(gctx, func(msg any) error {
			return s.dispatchSessionMessage(rm, sess.SiteID, msg)
		})
	})

	if err := g.Wait(); err != nil {
		s.logger.Info("session closed", "room", roomID, "site_id", sess.SiteID, "session", sess.ID, "reason", err)
	}
	rm.Leave(sess.SiteID)
}

// dispatchSessionMessage routes one decoded client->server message to
// the Room. Only crdtEvents and sitePresence are valid inbound kinds;
// anything else (including server->client-only kinds echoed back by a
// buggy client) is a transport fault that terminates the session.
func (s *Server) dispatchSessionMessage(rm *room.Room, siteID int64, msg any) error {
	switch m := msg.(type) {
	case wire.CrdtEvents:
		rm.HandleCrdtEvents(siteID, m.Events)
		return nil
	case wire.SitePresence:
		rm.HandleSitePresence(siteID, m.Name, m.Visible)
		return nil
	default:
		return fmt.Errorf("httpapi: unexpected client message %T", msg)
	}
}
