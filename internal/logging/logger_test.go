package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record), line)
		records = append(records, record)
	}
	return records
}

func TestWithMergesContextWithoutTouchingParent(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(&buf, "debug")
	jobLogger := root.WithJob("job-1", "Acme")
	apiLogger := jobLogger.With("api_name", "perplexity")

	apiLogger.Info("call finished", "attempt", 2)
	jobLogger.Info("stage done")
	root.Info("plain")

	records := decodeLines(t, &buf)
	require.Len(t, records, 3)

	assert.Equal(t, "job-1", records[0]["job_id"])
	assert.Equal(t, "Acme", records[0]["company_name"])
	assert.Equal(t, "perplexity", records[0]["api_name"])
	assert.EqualValues(t, 2, records[0]["attempt"])
	assert.Equal(t, "call finished", records[0]["message"])
	assert.NotEmpty(t, records[0]["timestamp"])

	assert.Equal(t, "job-1", records[1]["job_id"])
	assert.NotContains(t, records[1], "api_name")

	assert.NotContains(t, records[2], "job_id")
}

func TestExceptionRecordsTypeMessageAndTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info")

	logger.Exception(errors.New("boom"), "job failed", "job_id", "job-9")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "error", records[0]["level"])
	assert.Equal(t, "*errors.errorString", records[0]["error_type"])
	assert.Equal(t, "boom", records[0]["error"])
	assert.Contains(t, records[0]["trace"], "goroutine")
	assert.Equal(t, "job-9", records[0]["job_id"])
}

func TestLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "shown", records[0]["message"])
}

func TestFromContextFallsBack(t *testing.T) {
	var buf bytes.Buffer
	fallback := NewWithWriter(&buf, "info")
	tagged := fallback.With("job_id", "job-2")

	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.Same(t, tagged, FromContext(IntoContext(context.Background(), tagged), fallback))
	assert.NotNil(t, FromContext(context.Background(), nil))
}
