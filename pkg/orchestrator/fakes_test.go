package orchestrator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/goleak"

	"github.com/Fato07/runway-music-video-generator/pkg/runway"
	"github.com/Fato07/runway-music-video-generator/pkg/security"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock hands out timers that fire immediately and records every wait.
type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *fakeClock) NewTimer() backoff.Timer {
	return &fakeTimer{clock: c}
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type fakeTimer struct {
	clock *fakeClock
	ch    chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.clock.mu.Lock()
	t.clock.waits = append(t.clock.waits, d)
	t.clock.mu.Unlock()
	t.ch = make(chan time.Time, 1)
	t.ch <- time.Time{}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

// fakeJobs replays a scripted list of task states; the last one repeats.
type fakeJobs struct {
	mu        sync.Mutex
	createErr error
	created   []runway.TaskRequest
	tasks     []runway.Task
	pollErr   error
	polls     int
}

func (f *fakeJobs) CreateImageToVideo(_ context.Context, req runway.TaskRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	return "task-123", nil
}

func (f *fakeJobs) GetTask(_ context.Context, id string) (*runway.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	i := f.polls - 1
	if i >= len(f.tasks) {
		i = len(f.tasks) - 1
	}
	task := f.tasks[i]
	task.ID = id
	return &task, nil
}

func (f *fakeJobs) Submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeJobs) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// fakeDownloader fails with errs in order, then succeeds.
type fakeDownloader struct {
	mu    sync.Mutex
	errs  []error
	calls []string
}

func (f *fakeDownloader) Download(_ context.Context, uri, filename, analysisID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, uri)
	if n := len(f.calls); n <= len(f.errs) {
		return "", f.errs[n-1]
	}
	return "/results/" + analysisID + "/" + filename, nil
}

func (f *fakeDownloader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// imageValidator returns a real validator whose fetches answer with the
// given content type and length.
func imageValidator(contentType string, length int64, fetches *int) *security.Validator {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		if fetches != nil {
			*fetches++
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			Header:        http.Header{"Content-Type": []string{contentType}},
			ContentLength: length,
			Body:          io.NopCloser(strings.NewReader("")),
		}, nil
	})}
	return security.NewValidator(security.DefaultMaxImageSize, "http://localhost:8080/api/proxy-image", client)
}

type harness struct {
	orch       *Orchestrator
	clock      *fakeClock
	jobs       *fakeJobs
	downloader *fakeDownloader
	recorder   *Recorder
}

func newHarness(t *testing.T, validator ImageValidator, jobs *fakeJobs, downloader *fakeDownloader) *harness {
	t.Helper()
	if validator == nil {
		validator = imageValidator("image/png", 2048, nil)
	}
	if jobs == nil {
		jobs = &fakeJobs{}
	}
	if downloader == nil {
		downloader = &fakeDownloader{}
	}
	clock := &fakeClock{}
	orch, err := New(Options{
		Validator:  validator,
		Jobs:       jobs,
		Downloader: downloader,
		Policy:     DefaultPolicy(),
		NewTimer:   clock.NewTimer,
		Now: func() time.Time {
			return time.Date(2024, 11, 6, 13, 45, 12, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{orch: orch, clock: clock, jobs: jobs, downloader: downloader, recorder: &Recorder{}}
}

func sampleRequest() GenerationRequest {
	return GenerationRequest{
		AnalysisID:     "2024-11-06T13-45-12-000Z_track.mp3",
		SourceImage:    "https://cdn.example.com/scene.png",
		BeatTimestamps: []float64{0.5, 1.0, 1.5, 2.0},
		Options: Options{
			Mood:             MoodEnergetic,
			Tempo:            128,
			AnalysisFileName: "track.mp3",
		},
	}
}

var errConnReset = errors.New("connection reset by peer")
