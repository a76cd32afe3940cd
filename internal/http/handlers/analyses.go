package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/iago/market-analysis-back/internal/domain"
)

type analysisRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	LinkedInURL string `json:"linkedin_url,omitempty" validate:"omitempty,url,max=500"`
	WebsiteURL  string `json:"website_url,omitempty" validate:"omitempty,url,max=500"`
	Country     string `json:"country,omitempty" validate:"max=100"`
	City        string `json:"city,omitempty" validate:"max=100"`
	Sector      string `json:"sector,omitempty" validate:"max=200"`
	CompanyType string `json:"company_type" validate:"required,oneof=Startup PMI Corporate"`
	TaskRef     string `json:"task_ref,omitempty" validate:"max=128"`
}

func (r analysisRequest) company() domain.CompanyInfo {
	return domain.CompanyInfo{
		Name:        strings.TrimSpace(r.Name),
		LinkedInURL: strings.TrimSpace(r.LinkedInURL),
		WebsiteURL:  strings.TrimSpace(r.WebsiteURL),
		Country:     strings.TrimSpace(r.Country),
		City:        strings.TrimSpace(r.City),
		Sector:      strings.TrimSpace(r.Sector),
		Type:        domain.CompanyType(r.CompanyType),
	}
}

// CreateAnalysis accepts a company profile and starts an analysis job.
func (api *API) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var request analysisRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	request.Name = strings.TrimSpace(request.Name)
	if err := api.validate.Struct(request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", describeValidation(err))
		return
	}

	company := request.company()
	taskRef := strings.TrimSpace(request.TaskRef)
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		writeAccepted(w, api.jobs.CreateJob(r.Context(), company, taskRef), time.Now().UTC())
		return
	}

	payloadHash := hashPayload(request)
	entry, replayed := api.idempotency.claim(idempotencyKey, payloadHash, func() string {
		return api.jobs.CreateJob(r.Context(), company, taskRef)
	})
	if replayed && entry.PayloadHash != payloadHash {
		writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
		return
	}
	writeAccepted(w, entry.JobID, entry.CreatedAt)
}

func writeAccepted(w http.ResponseWriter, jobID string, acceptedAt time.Time) {
	w.Header().Set("Location", "/v1/jobs/"+jobID)
	w.Header().Set("Retry-After", "5")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      jobID,
		"status":      domain.JobStatusPending,
		"status_url":  "/v1/jobs/" + jobID,
		"accepted_at": acceptedAt.Format(time.RFC3339Nano),
	})
}
