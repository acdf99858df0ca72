package api

import (
	"context"
	"net/http"
)

// StatsFunc returns a JSON-encodable snapshot of service statistics.
type StatsFunc func(ctx context.Context) any

// StatsHandler handles stats requests.
type StatsHandler struct {
	stats StatsFunc
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(stats StatsFunc) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	var body any = map[string]any{}
	if h.stats != nil {
		body = h.stats(r.Context())
	}
	writeJSON(w, http.StatusOK, body)
}
