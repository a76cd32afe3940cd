package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iago/market-analysis-back/internal/ai"
	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/events"
	httpserver "github.com/iago/market-analysis-back/internal/http"
	"github.com/iago/market-analysis-back/internal/http/handlers"
	"github.com/iago/market-analysis-back/internal/logging"
	"github.com/iago/market-analysis-back/internal/report"
	"github.com/iago/market-analysis-back/internal/repository"
	"github.com/iago/market-analysis-back/internal/service"
	"github.com/iago/market-analysis-back/internal/worker"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type completionResult struct {
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Pending   int     `json:"unfinished"`
	P50MS     float64 `json:"p50_ms"`
	P95MS     float64 `json:"p95_ms"`
	MaxMS     float64 `json:"max_ms"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	Completion     completionResult `json:"job_completion"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server       *httptest.Server
	orchestrator *service.JobOrchestrator
	cancel       context.CancelFunc
}

// offlineFetcher keeps charts as remote references.
type offlineFetcher struct{}

func (offlineFetcher) Download(context.Context, string, string) (string, error) {
	return "", errors.New("image downloads disabled")
}

func main() {
	analysesTotal := flag.Int("analyses-total", 120, "total analysis requests")
	analysesConcurrency := flag.Int("analyses-concurrency", 24, "concurrency for analysis requests")
	listTotal := flag.Int("list-total", 120, "total job list requests")
	listConcurrency := flag.Int("list-concurrency", 20, "concurrency for job list requests")
	maxJobs := flag.Int("max-concurrent-jobs", 0, "bound on running jobs, 0 for unbounded")
	mockDelay := flag.Duration("mock-delay", 50*time.Millisecond, "simulated latency of each ai call")
	waitTimeout := flag.Duration("wait", 2*time.Minute, "maximum time to wait for jobs to finish")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	outputDir, err := os.MkdirTemp("", "analysis-loadtest-*")
	if err != nil {
		fail("create output dir: %v", err)
	}
	defer os.RemoveAll(outputDir)

	env, err := startBenchmarkEnvironment(outputDir, *maxJobs, *mockDelay)
	if err != nil {
		fail("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}

	analysesScenario := runScenario("analyses_enqueue", *analysesTotal, *analysesConcurrency, func(index int) error {
		payload := map[string]any{
			"name":         fmt.Sprintf("Load Company %03d", index),
			"website_url":  fmt.Sprintf("https://company-%d.example", index),
			"country":      "Italy",
			"sector":       "Software",
			"company_type": []string{"Startup", "PMI", "Corporate"}[index%3],
		}
		return call(client, http.MethodPost, env.server.URL+"/v1/analyses", payload, http.StatusAccepted)
	})

	listScenario := runScenario("jobs_list", *listTotal, *listConcurrency, func(int) error {
		return call(client, http.MethodGet, env.server.URL+"/v1/jobs", nil, http.StatusOK)
	})

	waitCtx, cancel := context.WithTimeout(context.Background(), *waitTimeout)
	defer cancel()
	_ = env.orchestrator.Wait(waitCtx)
	completion := summarizeCompletion(env.orchestrator.ListJobs())

	slo := map[string]bool{
		"analysis_enqueue_p95_le_200ms": analysesScenario.P95MS <= 200,
		"jobs_list_p95_le_500ms":        listScenario.P95MS <= 500,
		"all_jobs_finished":             completion.Pending == 0,
	}

	result := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        []scenarioResult{analysesScenario, listScenario},
		Completion:     completion,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fail("failed to marshal benchmark report: %v", err)
	}
	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			fail("failed to write output file: %v", err)
		}
	}
	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func startBenchmarkEnvironment(outputDir string, maxJobs int, delay time.Duration) (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.NewWithWriter(io.Discard, "error")

	orchestrator, err := service.NewJobOrchestrator(service.Dependencies{
		Researcher:  ai.MockResearchClient{Delay: delay},
		Synthesizer: ai.MockSynthesisClient{Delay: delay},
		Formatter: report.NewFormatter(report.FormatterConfig{
			OutputDir: outputDir,
			Fetcher:   offlineFetcher{},
			Logger:    logger,
		}),
		Store:    repository.NewMemoryTaskStore(),
		Pool:     worker.NewPool(maxJobs, logger),
		Notifier: events.NewHub(logger),
		Logger:   logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	router := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            handlers.NewAPI(orchestrator),
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	return &benchmarkEnv{
		server:       httptest.NewServer(router),
		orchestrator: orchestrator,
		cancel:       cancel,
	}, nil
}

// latencies collects request durations in milliseconds.
type latencies struct {
	mu      sync.Mutex
	samples []float64
	errors  []string
	failed  int
}

func (l *latencies) record(elapsed time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, float64(elapsed.Microseconds())/1000.0)
	if err == nil {
		return
	}
	l.failed++
	if len(l.errors) < 5 {
		l.errors = append(l.errors, err.Error())
	}
}

func (l *latencies) summarize(name string, elapsed time.Duration) scenarioResult {
	sort.Float64s(l.samples)
	result := scenarioResult{
		Name:         name,
		Total:        len(l.samples),
		Success:      len(l.samples) - l.failed,
		Errors:       l.failed,
		P50MS:        percentile(l.samples, 0.50),
		P95MS:        percentile(l.samples, 0.95),
		P99MS:        percentile(l.samples, 0.99),
		MaxMS:        percentile(l.samples, 1.00),
		ErrorSamples: l.errors,
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		result.ThroughputRPS = round2(float64(result.Total) / seconds)
	}
	return result
}

// runScenario issues total requests with at most concurrency in flight.
func runScenario(name string, total, concurrency int, request func(index int) error) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	var group errgroup.Group
	group.SetLimit(max(concurrency, 1))

	collected := &latencies{samples: make([]float64, 0, total)}
	started := time.Now()
	for i := 0; i < total; i++ {
		group.Go(func() error {
			requestStarted := time.Now()
			err := request(i)
			collected.record(time.Since(requestStarted), err)
			return nil
		})
	}
	_ = group.Wait()
	return collected.summarize(name, time.Since(started))
}

// summarizeCompletion reports creation-to-finish latency of terminal jobs.
func summarizeCompletion(jobs []domain.Job) completionResult {
	var result completionResult
	durations := make([]float64, 0, len(jobs))
	for _, job := range jobs {
		switch job.Status {
		case domain.JobStatusCompleted:
			result.Completed++
		case domain.JobStatusFailed:
			result.Failed++
		default:
			result.Pending++
			continue
		}
		if job.CompletedAt == nil {
			continue
		}
		durations = append(durations, float64(job.CompletedAt.Sub(job.CreatedAt).Microseconds())/1000.0)
	}
	sort.Float64s(durations)
	result.P50MS = percentile(durations, 0.50)
	result.P95MS = percentile(durations, 0.95)
	result.MaxMS = percentile(durations, 1.00)
	return result
}

func call(client *http.Client, method, url string, payload any, expectedStatus int) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, url, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != expectedStatus {
		excerpt, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("%s %s: status %d, want %d: %s", method, url, response.StatusCode, expectedStatus, excerpt)
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

// percentile uses the nearest-rank method over sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(float64(len(sorted))*p)) - 1
	rank = min(max(rank, 0), len(sorted)-1)
	return round2(sorted[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
