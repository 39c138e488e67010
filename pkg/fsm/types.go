package fsm

import "github.com/Fato07/runway-music-video-generator/pkg/orchestrator"

// GenerationRequest is the FSM input
type GenerationRequest struct {
	Request orchestrator.GenerationRequest
}

// GenerationResponse is the FSM output (accumulated across transitions)
type GenerationResponse struct {
	// From Validate
	GenerationID int64

	// From Submit
	JobID    string
	Prompt   string
	Duration int

	// From Poll
	PollAttempts int
	OutputURI    string

	// From Download
	LocalPath string
	S3Key     string
	SHA256    string

	// From Complete/Failed
	Status       string
	FailedPhase  string
	ErrorMessage string
}

// State names
const (
	StateValidate = "validate"
	StateSubmit   = "submit"
	StatePoll     = "poll"
	StateDownload = "download"
	StateComplete = "complete"
	StateFailed   = "failed"
)
