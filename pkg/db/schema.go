package db

// Schema defines the SQLite schema for the generation ledger.
// One row per orchestration run, keyed by analysis ID.
const Schema = `
CREATE TABLE IF NOT EXISTS generations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    analysis_id TEXT NOT NULL UNIQUE,
    source_image TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'submitted', 'polling', 'downloading', 'complete', 'failed', 'cleaned')),
    job_id TEXT,
    prompt TEXT,
    duration INTEGER,
    poll_attempts INTEGER NOT NULL DEFAULT 0,
    output_uri TEXT,
    local_path TEXT,
    s3_key TEXT,
    failed_phase TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_generations_analysis_id ON generations(analysis_id);
CREATE INDEX IF NOT EXISTS idx_generations_status ON generations(status);
CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);
`

// Status constants
const (
	StatusPending     = "pending"
	StatusSubmitted   = "submitted"
	StatusPolling     = "polling"
	StatusDownloading = "downloading"
	StatusComplete    = "complete"
	StatusFailed      = "failed"
	StatusCleaned     = "cleaned"
)

// Generation represents one orchestration run
type Generation struct {
	ID           int64
	AnalysisID   string
	SourceImage  string
	Status       string
	JobID        string
	Prompt       string
	Duration     int
	PollAttempts int
	OutputURI    string
	LocalPath    string
	S3Key        string
	FailedPhase  string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}

// Terminal reports whether the run has finished, successfully or not.
func (g *Generation) Terminal() bool {
	switch g.Status {
	case StatusComplete, StatusFailed, StatusCleaned:
		return true
	default:
		return false
	}
}
