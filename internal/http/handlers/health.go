package handlers

import (
	"net/http"

	"github.com/iago/market-analysis-back/internal/domain"
)

// Health reports liveness with the number of tracked jobs per status.
func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	counts := map[domain.JobStatus]int{
		domain.JobStatusPending:   0,
		domain.JobStatusRunning:   0,
		domain.JobStatusCompleted: 0,
		domain.JobStatusFailed:    0,
	}
	for _, job := range api.jobs.ListJobs() {
		counts[job.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "jobs": counts})
}
