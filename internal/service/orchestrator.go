package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/iago/market-analysis-back/internal/ai"
	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/logging"
	"github.com/iago/market-analysis-back/internal/policy"
	"github.com/iago/market-analysis-back/internal/quality"
	"github.com/iago/market-analysis-back/internal/report"
	"github.com/iago/market-analysis-back/internal/repository"
	"github.com/iago/market-analysis-back/internal/worker"
)

var ErrJobNotFound = errors.New("job not found")

const (
	progressInitializing = "Initializing analysis"
	progressResearch     = "Conducting market research"
	progressSynthesis    = "Analyzing data with AI"
	progressFormatting   = "Generating reports"
	progressCompleted    = "Analysis completed successfully"
	progressFailed       = "Analysis failed"

	mirrorTimeout = 15 * time.Second
)

// ResultFormatter renders a validated analysis into the job result.
type ResultFormatter interface {
	Format(ctx context.Context, analysis *domain.Analysis, run report.Run) (*domain.ResultPayload, report.Artifacts, error)
	OutputDir() string
}

// Notifier receives every job status change.
type Notifier interface {
	Publish(event domain.JobEvent)
}

type Dependencies struct {
	Researcher  ai.Researcher
	Synthesizer ai.Synthesizer
	Formatter   ResultFormatter
	Store       repository.TaskStore
	Pool        *worker.Pool
	Notifier    Notifier
	Logger      *logging.ContextLogger
	Now         func() time.Time
	NewID       func() string
}

// JobOrchestrator owns the job table and runs one analysis pipeline per
// job on the worker pool.
type JobOrchestrator struct {
	researcher  ai.Researcher
	synthesizer ai.Synthesizer
	formatter   ResultFormatter
	store       repository.TaskStore
	pool        *worker.Pool
	notifier    Notifier
	logger      *logging.ContextLogger
	now         func() time.Time
	newID       func() string
	table       *jobTable
}

func NewJobOrchestrator(deps Dependencies) (*JobOrchestrator, error) {
	if deps.Researcher == nil {
		return nil, errors.New("orchestrator requires a researcher")
	}
	if deps.Synthesizer == nil {
		return nil, errors.New("orchestrator requires a synthesizer")
	}
	if deps.Formatter == nil {
		return nil, errors.New("orchestrator requires a formatter")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Pool == nil {
		deps.Pool = worker.NewPool(0, deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &JobOrchestrator{
		researcher:  deps.Researcher,
		synthesizer: deps.Synthesizer,
		formatter:   deps.Formatter,
		store:       deps.Store,
		pool:        deps.Pool,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		now:         deps.Now,
		newID:       deps.NewID,
		table:       newJobTable(),
	}, nil
}

// CreateJob registers a pending job and starts its pipeline without
// waiting for it. The run outlives ctx cancellation.
func (o *JobOrchestrator) CreateJob(ctx context.Context, company domain.CompanyInfo, taskRef string) string {
	job := domain.NewJob(o.newID(), company, taskRef, o.now())
	o.table.insert(job)

	o.logger.WithJob(job.ID, company.Name).Info("job created",
		"task_ref", taskRef,
		"status", string(job.Status),
		"active_jobs", o.pool.Active(),
	)
	o.publish(job.Clone())

	jobID := job.ID
	o.pool.Go(context.WithoutCancel(ctx), "analysis:"+jobID, func(runCtx context.Context) {
		o.run(runCtx, jobID)
	})
	return jobID
}

func (o *JobOrchestrator) GetJob(id string) (domain.Job, bool) {
	return o.table.get(id)
}

// ListJobs returns a snapshot of every job ordered by creation time.
func (o *JobOrchestrator) ListJobs() []domain.Job {
	return o.table.snapshot()
}

// Wait blocks until every started pipeline has finished or ctx is done.
func (o *JobOrchestrator) Wait(ctx context.Context) error {
	return o.pool.Wait(ctx)
}

// PruneTerminal drops completed and failed jobs that finished before cutoff.
func (o *JobOrchestrator) PruneTerminal(cutoff time.Time) int {
	return o.table.pruneTerminal(cutoff)
}

func (o *JobOrchestrator) run(ctx context.Context, jobID string) {
	snapshot, ok := o.table.get(jobID)
	if !ok {
		o.logger.Error("job not found, analysis not started", "job_id", jobID)
		return
	}
	logger := o.logger.WithJob(jobID, snapshot.Company.Name)
	ctx = logging.IntoContext(ctx, logger)
	started := time.Now()

	defer func() {
		if recovered := recover(); recovered != nil {
			o.fail(ctx, jobID, fmt.Errorf("internal error: %v", recovered), started)
		}
	}()

	running, err := o.table.update(jobID, func(job *domain.Job) error {
		if err := job.Start(o.now()); err != nil {
			return err
		}
		job.Progress = progressInitializing
		return nil
	})
	if err != nil {
		logger.Error("job could not start", "error", err)
		return
	}
	logger.Info("status transition",
		"old_status", string(domain.JobStatusPending),
		"new_status", string(running.Status),
		"step", "status_running",
	)
	o.mirror(ctx, running)
	o.publish(running)

	result, err := o.pipeline(ctx, running)
	if err != nil {
		o.fail(ctx, jobID, err, started)
		return
	}

	completed, err := o.table.update(jobID, func(job *domain.Job) error {
		if err := job.Complete(o.now(), result); err != nil {
			return err
		}
		job.Progress = progressCompleted
		return nil
	})
	if err != nil {
		logger.Error("job could not complete", "error", err)
		return
	}
	logger.Info("analysis completed",
		"old_status", string(domain.JobStatusRunning),
		"new_status", string(completed.Status),
		"duration_ms", time.Since(started),
		"has_document", completed.Result.HasDocument(),
		"images", len(completed.Result.Analytics.Images),
		"step", "pipeline_success",
	)
	o.mirror(ctx, completed)
	o.publish(completed)
}

// pipeline runs research, synthesis and formatting. Any error aborts the
// remaining stages.
func (o *JobOrchestrator) pipeline(ctx context.Context, job domain.Job) (*domain.ResultPayload, error) {
	logger := logging.FromContext(ctx, o.logger)
	run := report.Run{ID: job.ID, Company: job.Company.Name, At: job.StartedAt.Local()}
	stem := run.Stem()

	logger.Info("starting analysis pipeline",
		"website", job.Company.WebsiteURL,
		"country", job.Company.Country,
		"city", job.Company.City,
		"sector", job.Company.Sector,
		"company_type", string(job.Company.Type),
		"step", "pipeline_start",
	)

	o.setProgress(job.ID, progressResearch)
	stageStarted := time.Now()
	research, err := o.researcher.Research(ctx, job.Company)
	if err != nil {
		return nil, err
	}
	if err := quality.CheckResearchSufficiency(research.Content); err != nil {
		logger.Error("research data insufficient", "error", err, "step", "insufficient_data")
		return nil, err
	}
	if err := o.writeArtifact("research_results_"+stem+".json", researchArtifact(research)); err != nil {
		return nil, err
	}
	logger.Info("research step completed",
		"duration_ms", time.Since(stageStarted),
		"content_length", len(research.Content),
		"step", "research_complete",
	)

	o.setProgress(job.ID, progressSynthesis)
	stageStarted = time.Now()
	text, err := o.synthesizer.Synthesize(ctx, job.Company, research)
	if err != nil {
		return nil, err
	}
	if err := o.writeArtifact("analysis_response_"+stem+".txt", []byte(policy.StripLinkedIn(text))); err != nil {
		return nil, err
	}
	analysis, err := quality.ParseAnalysis(text)
	if err != nil {
		logger.Error("analysis rejected", "error", err, "step", "analysis_rejected")
		return nil, err
	}
	logger.Info("analysis step completed",
		"duration_ms", time.Since(stageStarted),
		"response_length", len(text),
		"trends", len(analysis.InvestmentTrends),
		"step", "analysis_complete",
	)

	o.setProgress(job.ID, progressFormatting)
	stageStarted = time.Now()
	result, artifacts, err := o.formatter.Format(ctx, analysis, run)
	if err != nil {
		return nil, err
	}
	logger.Info("report generation completed",
		"duration_ms", time.Since(stageStarted),
		"markdown", artifacts.Markdown,
		"document", artifacts.Document,
		"step", "report_complete",
	)
	return result, nil
}

func (o *JobOrchestrator) fail(ctx context.Context, jobID string, cause error, started time.Time) {
	logger := logging.FromContext(ctx, o.logger)
	failed, err := o.table.update(jobID, func(job *domain.Job) error {
		if err := job.Fail(o.now(), cause.Error()); err != nil {
			return err
		}
		job.Progress = progressFailed
		return nil
	})
	if err != nil {
		logger.Exception(cause, "job failure could not be recorded", "transition_error", err)
		return
	}
	logger.Exception(cause, "analysis pipeline failed",
		"old_status", string(domain.JobStatusRunning),
		"new_status", string(failed.Status),
		"elapsed_ms", time.Since(started),
		"step", "pipeline_failed",
	)
	logger.Error("failure classified", "error_type", ai.ClassifyError(cause))
	o.mirror(ctx, failed)
	o.publish(failed)
}

func (o *JobOrchestrator) setProgress(jobID, progress string) {
	job, err := o.table.update(jobID, func(job *domain.Job) error {
		job.Progress = progress
		return nil
	})
	if err == nil {
		o.publish(job)
	}
}

// mirror pushes the job status to the external task store. Failures are
// logged and never affect the job.
func (o *JobOrchestrator) mirror(ctx context.Context, job domain.Job) {
	if o.store == nil || job.TaskRef == "" {
		return
	}
	logger := logging.FromContext(ctx, o.logger)
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	if _, err := o.store.Get(ctx, job.TaskRef); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			logger.Warn("task not found in store", "task_ref", job.TaskRef)
			return
		}
		logger.Error("task lookup failed", "task_ref", job.TaskRef, "error", err)
		return
	}

	update := repository.TaskUpdate{Status: string(job.Status), ErrorMessage: job.ErrorMessage}
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			logger.Error("encode task result failed", "task_ref", job.TaskRef, "error", err)
			return
		}
		update.ResultData = data
	}
	if err := o.store.Update(ctx, job.TaskRef, update); err != nil {
		logger.Error("task update failed", "task_ref", job.TaskRef, "status", update.Status, "error", err)
		return
	}
	logger.Debug("task updated in store", "task_ref", job.TaskRef, "status", update.Status)
}

func (o *JobOrchestrator) publish(job domain.Job) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(job.Event(o.now()))
}

func (o *JobOrchestrator) writeArtifact(name string, data []byte) error {
	dir := o.formatter.OutputDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// researchArtifact is the research response as received, with LinkedIn
// references removed.
func researchArtifact(research ai.ResearchResult) []byte {
	raw := research.Raw
	if len(raw) == 0 {
		encoded, err := json.Marshal(research)
		if err != nil {
			return []byte(policy.StripLinkedIn(research.Content))
		}
		raw = encoded
	}
	cleaned := policy.StripLinkedInJSON(raw)

	var pretty any
	if err := json.Unmarshal(cleaned, &pretty); err == nil {
		if indented, err := json.MarshalIndent(pretty, "", "    "); err == nil {
			return indented
		}
	}
	return cleaned
}
