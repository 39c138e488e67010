package orchestrator

import (
	"fmt"
	"time"
)

// AspectRatio is the output frame shape requested from the provider.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// Valid reports whether the ratio is one the provider accepts.
func (a AspectRatio) Valid() bool {
	return a == AspectLandscape || a == AspectPortrait
}

// MotionIntensity describes how much camera motion the clip should carry.
type MotionIntensity string

const (
	IntensitySubtle   MotionIntensity = "subtle"
	IntensityModerate MotionIntensity = "moderate"
	IntensityStrong   MotionIntensity = "strong"
)

// Valid reports whether the intensity is a known level.
func (m MotionIntensity) Valid() bool {
	switch m {
	case IntensitySubtle, IntensityModerate, IntensityStrong:
		return true
	default:
		return false
	}
}

// IntensityForTempo derives a motion intensity from the track tempo.
func IntensityForTempo(bpm float64) MotionIntensity {
	switch {
	case bpm > 140:
		return IntensityStrong
	case bpm > 100:
		return IntensityModerate
	default:
		return IntensitySubtle
	}
}

// Options carries the musical context and output preferences of a request.
type Options struct {
	Mood             Mood            `json:"mood"`
	Tempo            float64         `json:"tempo"`
	MotionIntensity  MotionIntensity `json:"motionIntensity,omitempty"`
	TransitionStyle  string          `json:"transitionStyle,omitempty"`
	AspectRatio      AspectRatio     `json:"aspectRatio,omitempty"`
	AnalysisFileName string          `json:"analysisFileName"`
}

// GenerationRequest is the input of one orchestration run.
type GenerationRequest struct {
	// AnalysisID namespaces the downloaded artifact. Generated from
	// Options.AnalysisFileName when empty.
	AnalysisID      string    `json:"analysisId,omitempty"`
	SourceImage     string    `json:"sourceImage"`
	AuxiliaryImages []string  `json:"auxiliaryImages,omitempty"`
	BeatTimestamps  []float64 `json:"beatTimestamps"`
	Options         Options   `json:"options"`
}

// Validate checks the structural invariants of the request.
func (r *GenerationRequest) Validate() error {
	if r.SourceImage == "" {
		return &ValidationError{Reason: ReasonRequest, Detail: "source image is required"}
	}
	if r.Options.Tempo <= 0 {
		return &ValidationError{Reason: ReasonRequest, Detail: fmt.Sprintf("tempo must be positive, got %g", r.Options.Tempo)}
	}
	for i := 1; i < len(r.BeatTimestamps); i++ {
		if r.BeatTimestamps[i] < r.BeatTimestamps[i-1] {
			return &ValidationError{
				Reason: ReasonRequest,
				Detail: fmt.Sprintf("beat timestamps must be non-decreasing (index %d: %g < %g)", i, r.BeatTimestamps[i], r.BeatTimestamps[i-1]),
			}
		}
	}
	if r.Options.AspectRatio != "" && !r.Options.AspectRatio.Valid() {
		return &ValidationError{Reason: ReasonRequest, Detail: fmt.Sprintf("unsupported aspect ratio %q", r.Options.AspectRatio)}
	}
	if r.Options.MotionIntensity != "" && !r.Options.MotionIntensity.Valid() {
		return &ValidationError{Reason: ReasonRequest, Detail: fmt.Sprintf("unsupported motion intensity %q", r.Options.MotionIntensity)}
	}
	return nil
}

// JobHandle identifies a job at the provider.
type JobHandle string

// JobStatus is the orchestrator's view of a provider job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobResult is the terminal state of a polled job.
type JobResult struct {
	Handle     JobHandle
	Status     JobStatus
	OutputURIs []string
	Attempts   int
}

// Artifact is the locally stored result of a successful run.
type Artifact struct {
	AnalysisID string `json:"analysisId"`
	JobID      string `json:"jobId"`
	OutputURI  string `json:"outputUri"`
	LocalPath  string `json:"filePath"`
}

// Policy holds the tunable bounds of a run.
type Policy struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	DownloadRetries int
	DownloadBackoff time.Duration
}

// DefaultPolicy returns the stock limits: poll every 2s for up to 30
// attempts, retry downloads 3 times with a 2s linear step.
func DefaultPolicy() Policy {
	return Policy{
		PollInterval:    2 * time.Second,
		MaxPollAttempts: 30,
		DownloadRetries: 3,
		DownloadBackoff: 2 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	if p.MaxPollAttempts <= 0 {
		p.MaxPollAttempts = def.MaxPollAttempts
	}
	if p.DownloadRetries <= 0 {
		p.DownloadRetries = def.DownloadRetries
	}
	if p.DownloadBackoff < 0 {
		p.DownloadBackoff = def.DownloadBackoff
	}
	return p
}
