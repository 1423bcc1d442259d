package dashboard

import (
	"net/http"
	"time"
)

// handleMetrics serves GET /api/metrics?range=&session=&metric= (spec
// §6.2): queries the tiered metrics store and returns a time series plus
// the aggregates each bucket already carries (count/sum/min/max).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session")
	metric := q.Get("metric")
	if sessionID == "" || metric == "" {
		badRequest(w, "session and metric query parameters are required")
		return
	}

	rng := 24 * time.Hour
	if raw := q.Get("range"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			badRequest(w, "range must be a duration like \"1h\" or \"24h\"")
			return
		}
		rng = d
	}

	until := time.Now()
	since := until.Add(-rng)
	points, err := s.metrics.RangeQuery(sessionID, metric, since, until)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sessionID,
		"metric":  metric,
		"since":   since,
		"until":   until,
		"points":  points,
	})
}
