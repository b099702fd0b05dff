package httpapi

import (
	"net/http"

	"github.com/collabtext/collabd/internal/registry"
	"github.com/collabtext/collabd/internal/wire"
)

// handleRoomCreate implements POST /resource/room: creates a room and
// returns its id.
func (s *Server) handleRoomCreate(w http.ResponseWriter, r *http.Request) {
	name := s.registry.Create()
	s.logger.Info("room created", "room", name)
	writeJSON(w, http.StatusOK, wire.RoomCreateResponse{RoomID: name})
}

// handleRoomGet implements GET /resource/room/{roomId}: returns the
// room's full event log plus the session settings the client needs to
// configure itself before opening the persistent session.
func (s *Server) handleRoomGet(w http.ResponseWriter, r *http.Request) {
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

	events := rm.Log.Since(0)
	writeJSON(w, http.StatusOK, wire.RoomGetResponse{
		Events:   events,
		Settings: rm.Settings(),
	})
}

// handleIntro implements GET /resource/intro.js: a static greeting/demo
// snippet shown in the landing editor before a room is joined. The
// editor UI and syntax highlighting that render it live elsewhere; this
// just serves the text.
func (s *Server) handleIntro(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(s.introText))
}
