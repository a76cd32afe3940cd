package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/market-analysis-back/internal/domain"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsJobEvents(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	first := dial(t, server)
	second := dial(t, server)
	require.Eventually(t, func() bool { return hub.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	hub.Publish(domain.JobEvent{JobID: "job-1", Status: domain.JobStatusRunning, Progress: "Conducting market research", At: at})

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var message Message
		require.NoError(t, conn.ReadJSON(&message))
		assert.Equal(t, "job_update", message.Type)
		assert.Equal(t, "job-1", message.Job.JobID)
		assert.Equal(t, domain.JobStatusRunning, message.Job.Status)
		assert.Equal(t, "Conducting market research", message.Job.Progress)
		assert.True(t, at.Equal(message.Job.At))
	}
}

func TestHubForgetsDisconnectedSubscribers(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(domain.JobEvent{JobID: "job-2", Status: domain.JobStatusCompleted})
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	assert.NotPanics(t, func() {
		hub.Publish(domain.JobEvent{JobID: "job-3", Status: domain.JobStatusPending})
	})
}
