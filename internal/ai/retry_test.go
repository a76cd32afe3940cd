package ai

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/market-analysis-back/internal/logging"
)

func TestRetryPolicyBackoffIsCapped(t *testing.T) {
	policy := RetryPolicy{BackoffUnit: time.Second}

	assert.Equal(t, 2*time.Second, policy.Backoff(1))
	assert.Equal(t, 4*time.Second, policy.Backoff(2))
	assert.Equal(t, 16*time.Second, policy.Backoff(4))
	assert.Equal(t, 30*time.Second, policy.Backoff(5))
	assert.Equal(t, 30*time.Second, policy.Backoff(40))
}

func TestRetrierAttemptsMaxRetriesPlusOne(t *testing.T) {
	sleeps := &recordedSleeps{}
	retrier := NewRetrier("test", RetryPolicy{Timeout: time.Second, MaxRetries: 2}, 0, nil).WithSleep(sleeps.sleep)

	calls := 0
	wantErr := &CallError{API: "test", Kind: ErrorKindConnection, Err: errors.New("refused")}
	err := retrier.Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})

	assert.Same(t, wantErr, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.all())
}

func TestRetrierZeroRetriesMakesSingleAttempt(t *testing.T) {
	sleeps := &recordedSleeps{}
	retrier := NewRetrier("test", RetryPolicy{Timeout: time.Second}, 0, nil).WithSleep(sleeps.sleep)

	calls := 0
	err := retrier.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("broken")
	})

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, ErrorKindUnexpected, callErr.Kind)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps.all())
}

func TestRetrierLogsEachAttempt(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "debug")
	retrier := NewRetrier("perplexity", RetryPolicy{Timeout: time.Second, MaxRetries: 1}, 0, logger).
		WithSleep((&recordedSleeps{}).sleep)

	calls := 0
	err := retrier.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &CallError{API: "perplexity", Kind: ErrorKindProtocol, StatusCode: 503, Body: "busy"}
		}
		return nil
	})
	require.NoError(t, err)

	output := buf.String()
	assert.Equal(t, 1, strings.Count(output, `"api call attempt failed"`))
	assert.Equal(t, 1, strings.Count(output, `"api call succeeded"`))
	assert.Contains(t, output, `"outcome":"protocol"`)
	assert.Contains(t, output, `"api_name":"perplexity"`)
}

func TestRetrierUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	jobLogger := logging.NewWithWriter(&buf, "debug").WithJob("job-7", "Acme")
	retrier := NewRetrier("claude", RetryPolicy{Timeout: time.Second}, 0, nil)

	err := retrier.Do(logging.IntoContext(context.Background(), jobLogger), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"job_id":"job-7"`)
}

func TestCallErrorRetryable(t *testing.T) {
	assert.True(t, (&CallError{Kind: ErrorKindTimeout}).Retryable())
	assert.True(t, (&CallError{Kind: ErrorKindProtocol, StatusCode: 429}).Retryable())
	assert.True(t, (&CallError{Kind: ErrorKindProtocol, StatusCode: 500}).Retryable())
	assert.False(t, (&CallError{Kind: ErrorKindProtocol, StatusCode: 400}).Retryable())
	assert.False(t, (&CallError{Kind: ErrorKindProtocol, StatusCode: 404}).Retryable())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "rate_limit", ClassifyError(&CallError{Kind: ErrorKindProtocol, StatusCode: 429}))
	assert.Equal(t, "connection", ClassifyError(&CallError{Kind: ErrorKindConnection}))
	assert.Equal(t, "json", ClassifyError(errors.New("invalid JSON in response")))
	assert.Equal(t, "unknown", ClassifyError(errors.New("boom")))
}
