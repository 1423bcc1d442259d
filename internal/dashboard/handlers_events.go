package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleEvents serves GET /api/events (spec §6.2): the dashboard-global
// delta stream (session:update, task:completed, alert:warning,
// heartbeat).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeStream(w, r, "events")
}

// handleLogs serves GET /api/logs/{sessionId} (spec §6.2): tails the
// session's log file, starting the fsnotify watch on first request.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	s.tail.ensure(s.hub, sessionID)
	s.hub.ServeStream(w, r, "logs:"+sessionID)
}
