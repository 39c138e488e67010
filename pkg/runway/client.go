// Package runway is a minimal client for the RunwayML image-to-video task API.
package runway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("runway: api key is required")

const (
	DefaultBaseURL    = "https://api.dev.runwayml.com"
	DefaultModel      = "gen3a_turbo"
	DefaultAPIVersion = "2024-11-06"
)

// Task statuses reported by the tasks endpoint.
const (
	StatusPending   = "PENDING"
	StatusThrottled = "THROTTLED"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Options configures the client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	APIVersion     string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the RunwayML API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	apiVersion string
	httpClient *http.Client
}

// TaskRequest is the image-to-video creation payload.
type TaskRequest struct {
	Model       string `json:"model"`
	PromptImage string `json:"promptImage"`
	PromptText  string `json:"promptText,omitempty"`
	Duration    int    `json:"duration"`
	Ratio       string `json:"ratio,omitempty"`
	Watermark   bool   `json:"watermark"`
}

// Task is a job as reported by the tasks endpoint.
type Task struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Output      []string `json:"output,omitempty"`
	Failure     string   `json:"failure,omitempty"`
	FailureCode string   `json:"failureCode,omitempty"`
	Progress    float64  `json:"progress,omitempty"`
}

// Terminal reports whether the task will not change status again.
func (t *Task) Terminal() bool {
	switch t.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("runway: status %d: %s", e.StatusCode, e.Message)
}

type createResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewClient constructs a client with defaults applied.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	version := strings.TrimSpace(opts.APIVersion)
	if version == "" {
		version = DefaultAPIVersion
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		apiVersion: version,
		httpClient: httpClient,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// CreateImageToVideo submits a task and returns its ID. An empty Model in
// req is replaced by the configured model.
func (c *Client) CreateImageToVideo(ctx context.Context, req TaskRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(req.PromptImage) == "" {
		return "", errors.New("runway: prompt image is required")
	}
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("runway: encode request: %w", err)
	}
	var created createResponse
	if err := c.do(ctx, http.MethodPost, "/v1/image_to_video", bytes.NewReader(body), &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("runway: empty task id")
	}

	log.Debug().
		Str("model", req.Model).
		Str("task_id", created.ID).
		Int("duration", req.Duration).
		Str("ratio", req.Ratio).
		Msg("runway_task_created")
	return created.ID, nil
}

// GetTask fetches the current state of a task.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("runway: task id is required")
	}
	var task Task
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	log.Debug().Str("task_id", id).Str("status", task.Status).Msg("runway_task_polled")
	return &task, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("runway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Runway-Version", c.apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runway: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("runway: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("runway: decode response: %w", err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		if detail.Error != "" {
			return detail.Error
		}
		if detail.Message != "" {
			return detail.Message
		}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = "empty response"
	}
	return msg
}
