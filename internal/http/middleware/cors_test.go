package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsHandler(origins []string, called *bool) http.Handler {
	return CORS(CORSConfig{AllowedOrigins: origins})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.Header().Set("Location", "/v1/jobs/abc")
		w.WriteHeader(http.StatusAccepted)
	}))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	called := false
	handler := corsHandler([]string{"https://App.Example.com/"}, &called)

	request := httptest.NewRequest(http.MethodOptions, "/v1/analyses", nil)
	request.Header.Set("Origin", "https://app.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "content-type,idempotency-key")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusNoContent, recorder.Code)
	assert.False(t, called)
	assert.Equal(t, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	assert.Equal(t, "600", recorder.Header().Get("Access-Control-Max-Age"))
}

func TestCORSExposesPollingHeadersOnAcceptedJob(t *testing.T) {
	called := false
	handler := corsHandler([]string{"*"}, &called)

	request := httptest.NewRequest(http.MethodPost, "/v1/analyses", nil)
	request.Header.Set("Origin", "https://dashboard.example")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	require.True(t, called)
	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Location, Retry-After, X-Request-Id", recorder.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSPassesThroughDisallowedOrigin(t *testing.T) {
	called := false
	handler := corsHandler([]string{"https://app.example.com"}, &called)

	request := httptest.NewRequest(http.MethodOptions, "/v1/analyses", nil)
	request.Header.Set("Origin", "https://evil.example")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.True(t, called)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSIgnoresRequestsWithoutOrigin(t *testing.T) {
	called := false
	handler := corsHandler(nil, &called)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))

	assert.True(t, called)
	assert.Empty(t, recorder.Header().Get("Vary"))
}
