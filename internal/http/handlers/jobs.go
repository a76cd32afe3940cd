package handlers

import (
	"net/http"
	"strings"

	"github.com/iago/market-analysis-back/internal/domain"
)

func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	job, ok := api.jobs.GetJob(jobID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type jobSummary struct {
	ID           string           `json:"job_id"`
	CompanyName  string           `json:"company_name"`
	Status       domain.JobStatus `json:"status"`
	Progress     string           `json:"progress,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    string           `json:"created_at"`
	HasResult    bool             `json:"has_result"`
}

// ListJobs returns every job without result payloads.
func (api *API) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := api.jobs.ListJobs()
	items := make([]jobSummary, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobSummary{
			ID:           job.ID,
			CompanyName:  job.Company.Name,
			Status:       job.Status,
			Progress:     job.Progress,
			ErrorMessage: job.ErrorMessage,
			CreatedAt:    job.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			HasResult:    job.Result != nil,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}
