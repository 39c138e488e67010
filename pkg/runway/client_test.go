package runway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateImageToVideoPayload(t *testing.T) {
	var captured TaskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/image_to_video", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, DefaultAPIVersion, r.Header.Get("X-Runway-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"task-123"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "secret", BaseURL: srv.URL + "/"})
	id, err := client.CreateImageToVideo(context.Background(), TaskRequest{
		PromptImage: "https://cdn.example.com/scene.png",
		PromptText:  "smooth camera movement",
		Duration:    5,
		Ratio:       "16:9",
	})
	require.NoError(t, err)
	assert.Equal(t, "task-123", id)
	assert.Equal(t, DefaultModel, captured.Model)
	assert.Equal(t, 5, captured.Duration)
	assert.False(t, captured.Watermark)
	assert.Equal(t, "16:9", captured.Ratio)
}

func TestCreateImageToVideoRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"promptImage must be a valid URL"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "secret", BaseURL: srv.URL})
	_, err := client.CreateImageToVideo(context.Background(), TaskRequest{PromptImage: "nope", Duration: 10})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "promptImage must be a valid URL", apiErr.Message)
}

func TestGetTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tasks/task-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"task-9","status":"FAILED","failure":"NSFW content detected","failureCode":"SAFETY"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "secret", BaseURL: srv.URL})
	task, err := client.GetTask(context.Background(), "task-9")
	require.NoError(t, err)
	assert.True(t, task.Terminal())
	assert.Equal(t, "NSFW content detected", task.Failure)
	assert.Equal(t, "SAFETY", task.FailureCode)
}

func TestMissingAPIKey(t *testing.T) {
	client := NewClient(Options{})
	_, err := client.GetTask(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = client.CreateImageToVideo(context.Background(), TaskRequest{PromptImage: "x"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestTaskTerminal(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{StatusPending, false},
		{StatusThrottled, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		task := Task{Status: tt.status}
		assert.Equal(t, tt.terminal, task.Terminal(), tt.status)
	}
}
