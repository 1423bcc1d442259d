package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleSessionsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.registry.Summary()
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	detail, err := s.registry.Detail(id)
	if err == ErrSessionNotFound {
		notFound(w, "session "+id+" not found")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleSessionControl wraps one of the Registry's Pause/Resume/SkipTask/
// End methods into spec §6.2's "200 on acknowledgement, 409 if illegal
// transition" control endpoint contract.
func (s *Server) handleSessionControl(action func(sessionID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		err := action(id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case err == ErrSessionNotFound:
			notFound(w, "session "+id+" not found")
		case isIllegalTransition(err):
			conflict(w, err.Error())
		default:
			internalError(w, err)
		}
	}
}

func isIllegalTransition(err error) bool {
	_, ok := err.(*illegalTransitionError)
	return ok
}
