package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(base string) *client {
	return &client{base: base, http: &http.Client{Timeout: time.Second}}
}

func TestWSURL(t *testing.T) {
	c := testClient("http://localhost:8090")
	assert.Equal(t, "ws://localhost:8090/api/streams/ws", c.wsURL(nil))
	assert.Equal(t,
		"ws://localhost:8090/api/streams/ws?streams=task_status%2Ctask_updates",
		c.wsURL([]string{"task_status", "task_updates"}))

	secure := testClient("https://feedd.example.com")
	assert.Equal(t, "wss://feedd.example.com/api/streams/ws", secure.wsURL(nil))
}

func TestGetJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"feed":{"enabled":true,"connection_state":"connected"},"uptime":"5s"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	status, err := c.getFeedStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Feed.Enabled)
	assert.Equal(t, "connected", status.Feed.State)
	assert.Equal(t, "5s", status.Uptime)
}

func TestGetJSONSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"task not found"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.getTask(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task not found")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactlyten", truncate("exactlyten", 10))
	assert.Equal(t, "this is a…", truncate("this is a long message", 10))
}
