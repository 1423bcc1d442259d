package dashboard

import (
	"net/http"
	"time"

	"loopctl/internal/limits"
)

// limitWindowView is one window's entry in spec §6.2's usage/limits
// response: "{fiveHour, daily, weekly} with used/limit/percent/resetAt/
// resetIn/pace/projected".
type limitWindowView struct {
	Used      int     `json:"used"`
	Limit     int     `json:"limit"`
	Percent   float64 `json:"percent"`
	ResetAt   string  `json:"resetAt"`
	ResetIn   string  `json:"resetIn"`
	Pace      float64 `json:"pace"`
	Projected float64 `json:"projected"`
	Safety    string  `json:"safety"`
}

func toLimitView(st limits.Status, now time.Time) limitWindowView {
	projected := st.PaceHour * st.ResetAt.Sub(now).Hours()
	return limitWindowView{
		Used:      st.Count,
		Limit:     st.Ceiling,
		Percent:   st.Ratio * 100,
		ResetAt:   st.ResetAt.Format(time.RFC3339),
		ResetIn:   st.ResetAt.Sub(now).Round(time.Second).String(),
		Pace:      st.PaceHour,
		Projected: float64(st.Count) + projected,
		Safety:    string(st.Safety),
	}
}

func (s *Server) handleUsageLimits(w http.ResponseWriter, r *http.Request) {
	if s.registry.limitsT == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	now := time.Now()
	statuses := s.registry.limitsT.CheckAll()
	resp := map[string]limitWindowView{
		"fiveHour": toLimitView(statuses[limits.WindowFiveHour], now),
		"daily":    toLimitView(statuses[limits.WindowDaily], now),
		"weekly":   toLimitView(statuses[limits.WindowWeekly], now),
	}
	writeJSON(w, http.StatusOK, resp)
}
