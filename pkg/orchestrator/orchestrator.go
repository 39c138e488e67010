// Package orchestrator drives one image-to-video generation job from input
// validation through job submission, status polling and artifact download.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/Fato07/runway-music-video-generator/pkg/results"
	"github.com/Fato07/runway-music-video-generator/pkg/runway"
	"github.com/Fato07/runway-music-video-generator/pkg/security"
)

// ImageValidator checks that a source image is usable.
type ImageValidator interface {
	ValidateImage(ctx context.Context, imageURI string) (*security.ImageInfo, error)
}

// JobClient creates and inspects provider jobs.
type JobClient interface {
	CreateImageToVideo(ctx context.Context, req runway.TaskRequest) (string, error)
	GetTask(ctx context.Context, id string) (*runway.Task, error)
}

// Downloader stores a remote file under an analysis namespace and returns
// its relative path.
type Downloader interface {
	Download(ctx context.Context, uri, filename, analysisID string) (string, error)
}

// Options wires an Orchestrator.
type Options struct {
	Validator  ImageValidator
	Jobs       JobClient
	Downloader Downloader
	Policy     Policy
	// Model overrides the job client's default model when set.
	Model string
	// NewTimer supplies the timer used for every wait. Defaults to the
	// wall clock.
	NewTimer func() backoff.Timer
	Now      func() time.Time
}

// Orchestrator is safe for concurrent runs; all per-run state lives in
// the call.
type Orchestrator struct {
	validator  ImageValidator
	jobs       JobClient
	downloader Downloader
	policy     Policy
	model      string
	newTimer   func() backoff.Timer
	now        func() time.Time
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Validator == nil {
		return nil, errors.New("orchestrator: image validator is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("orchestrator: job client is required")
	}
	if opts.Downloader == nil {
		return nil, errors.New("orchestrator: downloader is required")
	}
	newTimer := opts.NewTimer
	if newTimer == nil {
		newTimer = func() backoff.Timer { return &clockTimer{} }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		validator:  opts.Validator,
		jobs:       opts.Jobs,
		downloader: opts.Downloader,
		policy:     opts.Policy.withDefaults(),
		model:      opts.Model,
		newTimer:   newTimer,
		now:        now,
	}, nil
}

// Policy returns the effective limits.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Run validates the request, submits the job, polls it to completion and
// downloads the first output. Observers see a terminal complete or error
// event before Run returns.
func (o *Orchestrator) Run(ctx context.Context, req GenerationRequest, obs Observer) (*Artifact, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	if req.AnalysisID == "" {
		req.AnalysisID = results.NewAnalysisID(req.Options.AnalysisFileName, o.now())
	}
	logger := log.With().Str("analysis_id", req.AnalysisID).Logger()
	logger.Info().Str("source_image", req.SourceImage).Msg("run_started")

	if err := o.ValidateRequest(ctx, req, obs); err != nil {
		return nil, o.ReportFailure(obs, PhaseValidating, err)
	}

	handle, err := o.CreateJob(ctx, req, obs)
	if err != nil {
		return nil, o.ReportFailure(obs, PhaseGenerating, err)
	}

	result, err := o.PollUntilTerminal(ctx, handle, obs)
	if err != nil {
		return nil, o.ReportFailure(obs, PhaseProcessing, err)
	}

	outputURI := result.OutputURIs[0]
	localPath, err := o.DownloadWithRetry(ctx, outputURI, VideoFileName(handle), req.AnalysisID, obs)
	if err != nil {
		return nil, o.ReportFailure(obs, PhaseDownloading, err)
	}

	artifact := &Artifact{
		AnalysisID: req.AnalysisID,
		JobID:      string(handle),
		OutputURI:  outputURI,
		LocalPath:  localPath,
	}
	o.ReportComplete(obs, artifact)
	logger.Info().Str("job_id", artifact.JobID).Str("local_path", localPath).Msg("run_complete")
	return artifact, nil
}

// ValidateRequest checks the request invariants and then the source image
// through ValidateInput. Malformed requests fail before anything is fetched.
func (o *Orchestrator) ValidateRequest(ctx context.Context, req GenerationRequest, obs Observer) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return o.ValidateInput(ctx, req.SourceImage, obs)
}

// ValidateInput emits a validating event and checks the image's content
// type and size through the proxy fetch.
func (o *Orchestrator) ValidateInput(ctx context.Context, imageURI string, obs Observer) error {
	emit(obs, PhaseValidating, "Validating source image", nil)
	return o.checkImage(ctx, imageURI)
}

func (o *Orchestrator) checkImage(ctx context.Context, imageURI string) error {
	if _, err := o.validator.ValidateImage(ctx, imageURI); err != nil {
		switch {
		case errors.Is(err, security.ErrNotImage):
			return &ValidationError{Reason: ReasonFormat, Detail: "source must be an image", Err: err}
		case errors.Is(err, security.ErrImageTooLarge):
			return &ValidationError{Reason: ReasonSize, Detail: "source image is too large", Err: err}
		default:
			return &ValidationError{Reason: ReasonFetch, Detail: "could not fetch source image", Err: err}
		}
	}
	return nil
}

// CreateJob derives duration and prompt from the request and submits the
// job to the provider.
func (o *Orchestrator) CreateJob(ctx context.Context, req GenerationRequest, obs Observer) (JobHandle, error) {
	emit(obs, PhaseGenerating, "Submitting video generation job", nil)

	ratio := req.Options.AspectRatio
	if ratio == "" {
		ratio = AspectLandscape
	}
	task := runway.TaskRequest{
		Model:       o.model,
		PromptImage: req.SourceImage,
		PromptText:  MotionPrompt(req.Options),
		Duration:    ClipDuration(req.Options.Tempo, len(req.BeatTimestamps)),
		Ratio:       string(ratio),
		Watermark:   false,
	}
	id, err := o.jobs.CreateImageToVideo(ctx, task)
	if err != nil {
		var apiErr *runway.APIError
		if errors.As(err, &apiErr) {
			return "", &SubmissionError{StatusCode: apiErr.StatusCode, Message: apiErr.Message, Err: err}
		}
		return "", &SubmissionError{Message: err.Error(), Err: err}
	}

	log.Info().
		Str("job_id", id).
		Int("duration", task.Duration).
		Str("ratio", task.Ratio).
		Str("prompt", task.PromptText).
		Msg("job_submitted")
	return JobHandle(id), nil
}

var errStillRunning = errors.New("job still running")

// PollUntilTerminal waits one interval and then polls the job at a fixed
// interval until it reaches a terminal status or the attempt bound.
func (o *Orchestrator) PollUntilTerminal(ctx context.Context, handle JobHandle, obs Observer) (*JobResult, error) {
	maxAttempts := o.policy.MaxPollAttempts
	timer := o.newTimer()
	if err := sleep(ctx, timer, o.policy.PollInterval); err != nil {
		return nil, err
	}

	result := &JobResult{Handle: handle}
	err := repeat(ctx, maxAttempts, fixedDelay(o.policy.PollInterval), timer, func(attempt int) error {
		result.Attempts = attempt
		emit(obs, PhaseProcessing,
			fmt.Sprintf("Processing video (check %d of %d)", attempt, maxAttempts),
			percent(pollPercent(attempt, maxAttempts)))

		task, err := o.jobs.GetTask(ctx, string(handle))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("poll job %s: %w", handle, err))
		}
		log.Debug().Str("job_id", string(handle)).Int("attempt", attempt).Str("status", task.Status).Msg("job_polled")

		if !task.Terminal() {
			result.Status = JobRunning
			return errStillRunning
		}
		if task.Status != runway.StatusSucceeded {
			result.Status = JobFailed
			return backoff.Permanent(&GenerationFailedError{
				JobID:  string(handle),
				Reason: task.Failure,
				Code:   task.FailureCode,
			})
		}
		result.Status = JobSucceeded
		result.OutputURIs = nonEmpty(task.Output)
		return nil
	})
	if errors.Is(err, errStillRunning) {
		log.Warn().Str("job_id", string(handle)).Int("attempts", result.Attempts).Msg("job_poll_timeout")
		return nil, &TimeoutError{JobID: string(handle), Attempts: result.Attempts}
	}
	if err != nil {
		return nil, err
	}
	if len(result.OutputURIs) == 0 {
		return nil, &EmptyResultError{JobID: string(handle)}
	}
	return result, nil
}

// DownloadWithRetry fetches uri into the analysis namespace, retrying with
// a linearly growing wait between failures.
func (o *Orchestrator) DownloadWithRetry(ctx context.Context, uri, filename, analysisID string, obs Observer) (string, error) {
	emit(obs, PhaseDownloading, "Downloading generated video", percent(95))

	maxRetries := o.policy.DownloadRetries
	var (
		localPath string
		attempts  int
	)
	err := repeat(ctx, maxRetries, linearDelay(o.policy.DownloadBackoff), o.newTimer(), func(attempt int) error {
		attempts = attempt
		path, err := o.downloader.Download(ctx, uri, filename, analysisID)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Int("max_retries", maxRetries).Str("uri", uri).Msg("download_attempt_failed")
			return err
		}
		localPath = path
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", err
		}
		return "", &DownloadError{URI: uri, Attempts: attempts, Err: err}
	}
	return localPath, nil
}

// ReportComplete emits the terminal complete event.
func (o *Orchestrator) ReportComplete(obs Observer, artifact *Artifact) {
	emit(obs, PhaseComplete, "Video ready: "+artifact.LocalPath, percent(100))
}

// ReportFailure emits the terminal error event and wraps err for the
// caller.
func (o *Orchestrator) ReportFailure(obs Observer, phase Phase, err error) error {
	log.Error().Err(err).Str("phase", string(phase)).Msg("run_failed")
	emit(obs, PhaseError, err.Error(), nil)
	return &RunError{Phase: phase, Err: err}
}

// VideoFileName is the local file name used for a job's output.
func VideoFileName(handle JobHandle) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, string(handle))
	if name == "" {
		name = "output"
	}
	return "video-" + name + ".mp4"
}

func emit(obs Observer, phase Phase, msg string, pct *int) {
	if obs == nil {
		return
	}
	obs.OnProgress(ProgressEvent{Phase: phase, Message: msg, Percent: pct, Timestamp: time.Now().UTC()})
}

func nonEmpty(uris []string) []string {
	out := make([]string, 0, len(uris))
	for _, u := range uris {
		if strings.TrimSpace(u) != "" {
			out = append(out, u)
		}
	}
	return out
}
