package orchestrator

import "fmt"

// ValidationReason classifies why an input was rejected.
type ValidationReason string

const (
	ReasonRequest ValidationReason = "request"
	ReasonFormat  ValidationReason = "format"
	ReasonSize    ValidationReason = "size"
	ReasonFetch   ValidationReason = "fetch"
)

// ValidationError reports a bad request or source image.
type ValidationError struct {
	Reason ValidationReason
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "invalid input (" + string(e.Reason) + ")"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SubmissionError reports that the provider rejected job creation.
type SubmissionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("job submission rejected (status %d): %s", e.StatusCode, e.Message)
	}
	return "job submission failed: " + e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TimeoutError reports that the job was still running after the last poll.
type TimeoutError struct {
	JobID    string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("video generation timed out: job %s still running after %d polls", e.JobID, e.Attempts)
}

// GenerationFailedError carries the provider's failure reason.
type GenerationFailedError struct {
	JobID  string
	Reason string
	Code   string
}

func (e *GenerationFailedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = e.Code
	}
	if reason == "" {
		reason = "unknown failure"
	}
	return "video generation failed: " + reason
}

// EmptyResultError reports a successful job with no output.
type EmptyResultError struct {
	JobID string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no video output received for job %s", e.JobID)
}

// DownloadError wraps the last failure after all download attempts.
type DownloadError struct {
	URI      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// RunError is returned by Run and names the phase that failed.
type RunError struct {
	Phase Phase
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
