package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid job status transition")

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type CompanyType string

const (
	CompanyTypeStartup   CompanyType = "Startup"
	CompanyTypePMI       CompanyType = "PMI"
	CompanyTypeCorporate CompanyType = "Corporate"
)

// CompanyInfo is the input profile of an analysis request.
type CompanyInfo struct {
	Name        string      `json:"name"`
	LinkedInURL string      `json:"linkedin_url,omitempty"`
	WebsiteURL  string      `json:"website_url,omitempty"`
	Country     string      `json:"country,omitempty"`
	City        string      `json:"city,omitempty"`
	Sector      string      `json:"sector,omitempty"`
	Type        CompanyType `json:"company_type"`
}

// Job is one analysis request and its lifecycle. Status only moves
// forward: pending -> running -> completed|failed.
type Job struct {
	ID           string         `json:"job_id"`
	TaskRef      string         `json:"task_ref,omitempty"`
	Company      CompanyInfo    `json:"company_info"`
	Status       JobStatus      `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
	Progress     string         `json:"progress,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Result       *ResultPayload `json:"result,omitempty"`
}

func NewJob(id string, company CompanyInfo, taskRef string, now time.Time) *Job {
	return &Job{
		ID:        id,
		TaskRef:   taskRef,
		Company:   company,
		Status:    JobStatusPending,
		CreatedAt: now,
	}
}

// Start moves a pending job to running.
func (j *Job) Start(now time.Time) error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusRunning)
	}
	now = notBefore(now, j.CreatedAt)
	j.Status = JobStatusRunning
	j.StartedAt = &now
	return nil
}

// Complete moves a running job to completed with its result.
func (j *Job) Complete(now time.Time, result *ResultPayload) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusCompleted)
	}
	if result == nil {
		return fmt.Errorf("%w: completed job requires a result", ErrInvalidTransition)
	}
	now = notBefore(now, *j.StartedAt)
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.ErrorMessage = ""
	j.Result = result
	return nil
}

// Fail moves a running job to failed. An empty message is replaced so the
// failed state always carries a description.
func (j *Job) Fail(now time.Time, message string) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusFailed)
	}
	if message == "" {
		message = "analysis failed"
	}
	now = notBefore(now, *j.StartedAt)
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.ErrorMessage = message
	j.Result = nil
	return nil
}

// Clone returns a deep copy safe to hand out of the job table.
func (j *Job) Clone() Job {
	clone := *j
	if j.StartedAt != nil {
		startedAt := *j.StartedAt
		clone.StartedAt = &startedAt
	}
	if j.CompletedAt != nil {
		completedAt := *j.CompletedAt
		clone.CompletedAt = &completedAt
	}
	clone.Result = j.Result.Clone()
	return clone
}

func notBefore(value, floor time.Time) time.Time {
	if value.Before(floor) {
		return floor
	}
	return value
}

// JobEvent is the status notification published on every job change.
type JobEvent struct {
	JobID        string    `json:"job_id"`
	TaskRef      string    `json:"task_ref,omitempty"`
	Status       JobStatus `json:"status"`
	Progress     string    `json:"progress,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	At           time.Time `json:"at"`
}

func (j *Job) Event(at time.Time) JobEvent {
	return JobEvent{
		JobID:        j.ID,
		TaskRef:      j.TaskRef,
		Status:       j.Status,
		Progress:     j.Progress,
		ErrorMessage: j.ErrorMessage,
		At:           at,
	}
}
