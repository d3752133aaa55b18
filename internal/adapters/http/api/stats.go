package api

import (
	"context"
	"maps"
	"net/http"
	"time"
)

// StatsProvider reports runtime statistics of the upload service.
type StatsProvider interface {
	GetStats(ctx context.Context) map[string]any
}

// StatsHandler serves service statistics plus the API server uptime.
type StatsHandler struct {
	provider StatsProvider
	since    time.Time
}

// NewStatsHandler creates a stats handler whose uptime counts from now.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider, since: time.Now()}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	out := map[string]any{}
	if h.provider != nil {
		maps.Copy(out, h.provider.GetStats(r.Context()))
	}
	out["uptimeSeconds"] = int64(time.Since(h.since).Seconds())
	writeJSON(w, http.StatusOK, out)
}
