package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type offlineFetcher struct{}

func (offlineFetcher) Download(context.Context, string, string) (string, error) {
	return "", errors.New("offline")
}

type brokenResearcher struct{}

func (brokenResearcher) Research(context.Context, domain.CompanyInfo) (ai.ResearchResult, error) {
	return ai.ResearchResult{}, errors.New("research backend unavailable")
}

type integrationRuntime struct {
	server       *httptest.Server
	store        *repository.MemoryTaskStore
	hub          *events.Hub
	orchestrator *service.JobOrchestrator
	outputDir    string
}

func startIntegrationRuntime(t *testing.T, researcher ai.Researcher) integrationRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.NewWithWriter(io.Discard, "error")
	outputDir := t.TempDir()
	store := repository.NewMemoryTaskStore()
	hub := events.NewHub(logger)

	orchestrator, err := service.NewJobOrchestrator(service.Dependencies{
		Researcher:  researcher,
		Synthesizer: ai.MockSynthesisClient{},
		Formatter: report.NewFormatter(report.FormatterConfig{
			OutputDir: outputDir,
			Fetcher:   offlineFetcher{},
			Logger:    logger,
		}),
		Store:    store,
		Pool:     worker.NewPool(4, logger),
		Notifier: hub,
		Logger:   logger,
	})
	require.NoError(t, err)

	router := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            handlers.NewAPI(orchestrator),
		Stream:         hub,
		Logger:         logger,
		CORSOrigins:    []string{"*"},
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		hub.Close()
		server.Close()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer waitCancel()
		_ = orchestrator.Wait(waitCtx)
		cancel()
	})

	return integrationRuntime{
		server:       server,
		store:        store,
		hub:          hub,
		orchestrator: orchestrator,
		outputDir:    outputDir,
	}
}

func postJSON(t *testing.T, client *http.Client, url string, payload any) (int, map[string]any) {
	t.Helper()

	encoded, err := json.Marshal(payload)
	require.NoError(t, err)
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	return doJSON(t, client, request)
}

func getJSON(t *testing.T, client *http.Client, url string) (int, map[string]any) {
	t.Helper()

	request, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	request.Header.Set("Accept", "application/json")
	return doJSON(t, client, request)
}

func doJSON(t *testing.T, client *http.Client, request *http.Request) (int, map[string]any) {
	t.Helper()

	response, err := client.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded), "decode body (%d): %s", response.StatusCode, string(raw))
	return response.StatusCode, decoded
}

func waitForTerminal(t *testing.T, client *http.Client, baseURL, jobID string, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, body := getJSON(t, client, fmt.Sprintf("%s/v1/jobs/%s", baseURL, jobID))
		if status == http.StatusOK {
			switch body["status"] {
			case string(domain.JobStatusCompleted), string(domain.JobStatusFailed):
				return body
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for job %s to finish", jobID)
	return nil
}

func TestAnalysisFlowCompletesAndMirrorsTask(t *testing.T) {
	runtime := startIntegrationRuntime(t, ai.MockResearchClient{})
	require.NoError(t, runtime.store.CreateTask(context.Background(), "task-42"))
	client := runtime.server.Client()

	wsURL := "ws" + strings.TrimPrefix(runtime.server.URL, "http") + "/v1/jobs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return runtime.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	status, accepted := postJSON(t, client, runtime.server.URL+"/v1/analyses", map[string]any{
		"name":         "Acme Robotics",
		"website_url":  "https://acme.example",
		"country":      "Italy",
		"sector":       "Industrial Automation",
		"company_type": "PMI",
		"task_ref":     "task-42",
	})
	require.Equal(t, http.StatusAccepted, status, accepted)
	jobID, _ := accepted["job_id"].(string)
	require.NotEmpty(t, jobID)

	job := waitForTerminal(t, client, runtime.server.URL, jobID, 10*time.Second)
	require.Equal(t, string(domain.JobStatusCompleted), job["status"], job)
	assert.Equal(t, "Analysis completed successfully", job["progress"])

	result, ok := job["result"].(map[string]any)
	require.True(t, ok, "completed job carries a result")
	overview := result["overview"].(map[string]any)
	assert.Equal(t, "Acme Robotics", overview["company_name"])
	assert.EqualValues(t, 2, overview["high_priority_trends"])
	analytics := result["analytics"].(map[string]any)
	assert.Equal(t, []any{}, analytics["images"])
	assert.NotEmpty(t, result["document"])

	record, err := runtime.store.Get(context.Background(), "task-42")
	require.NoError(t, err)
	assert.Equal(t, string(domain.JobStatusCompleted), record.Status)
	assert.Contains(t, string(record.ResultData), "Acme Robotics")

	statusCode, list := getJSON(t, client, runtime.server.URL+"/v1/jobs")
	require.Equal(t, http.StatusOK, statusCode)
	assert.EqualValues(t, 1, list["total"])

	sawCompleted := false
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for !sawCompleted {
		var message events.Message
		require.NoError(t, conn.ReadJSON(&message))
		if message.Job.JobID == jobID && message.Job.Status == domain.JobStatusCompleted {
			sawCompleted = true
		}
	}
}

func TestAnalysisFlowRecordsFailure(t *testing.T) {
	runtime := startIntegrationRuntime(t, brokenResearcher{})
	require.NoError(t, runtime.store.CreateTask(context.Background(), "task-7"))
	client := runtime.server.Client()

	status, accepted := postJSON(t, client, runtime.server.URL+"/v1/analyses", map[string]any{
		"name":         "Beta Foods",
		"company_type": "Corporate",
		"task_ref":     "task-7",
	})
	require.Equal(t, http.StatusAccepted, status, accepted)

	job := waitForTerminal(t, client, runtime.server.URL, accepted["job_id"].(string), 5*time.Second)
	assert.Equal(t, string(domain.JobStatusFailed), job["status"])
	assert.Equal(t, "research backend unavailable", job["error_message"])
	assert.Nil(t, job["result"])

	record, err := runtime.store.Get(context.Background(), "task-7")
	require.NoError(t, err)
	assert.Equal(t, string(domain.JobStatusFailed), record.Status)
	assert.Equal(t, "research backend unavailable", record.ErrorMessage)
}

func TestAnalysisFlowRejectsInvalidPayload(t *testing.T) {
	runtime := startIntegrationRuntime(t, ai.MockResearchClient{})
	client := runtime.server.Client()

	status, body := postJSON(t, client, runtime.server.URL+"/v1/analyses", map[string]any{
		"name":         "",
		"company_type": "Nonprofit",
	})
	assert.Equal(t, http.StatusBadRequest, status, body)
	assert.Empty(t, runtime.orchestrator.ListJobs())
}
