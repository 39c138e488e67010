package fsm

import (
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog/log"
	"github.com/superfly/fsm"

	"github.com/Fato07/runway-music-video-generator/pkg/db"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
)

type request = fsm.Request[GenerationRequest, GenerationResponse]
type response = fsm.Response[GenerationResponse]

var errResponseMissing = errors.New("response not initialized")

// checkRetries fails the run once the fsm has replayed a state maxRetries
// times.
func (m *Machine) checkRetries(ctx context.Context, req *request, phase orchestrator.Phase) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		log.Error().Str("analysis_id", req.Msg.Request.AnalysisID).Int("max_retries", m.maxRetries).Msg("max_retries_exceeded")
		return m.fail(req, req.W.Msg, phase, fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

// fail reports the terminal error to observers, records it in the ledger
// and aborts the workflow. Rows that already finished are left as they are.
func (m *Machine) fail(req *request, resp *GenerationResponse, phase orchestrator.Phase, cause error) error {
	analysisID := req.Msg.Request.AnalysisID
	runErr := m.orch.ReportFailure(m.observer(analysisID), phase, cause)

	if resp != nil {
		resp.Status = db.StatusFailed
		resp.FailedPhase = string(phase)
		resp.ErrorMessage = cause.Error()
	}

	g, err := m.repo.GetByAnalysisID(analysisID)
	switch {
	case err != nil:
		log.Error().Err(err).Str("analysis_id", analysisID).Msg("ledger_failure_record_failed")
	case g == nil, g.Status == db.StatusComplete, g.Status == db.StatusCleaned:
	default:
		if resp != nil {
			applyResponse(g, resp)
		} else {
			g.Status = db.StatusFailed
			g.FailedPhase = string(phase)
			g.ErrorMessage = cause.Error()
		}
		if err := m.repo.Update(g); err != nil {
			log.Error().Err(err).Str("analysis_id", analysisID).Msg("ledger_failure_record_failed")
		}
	}
	return fsm.Abort(runErr)
}

func applyResponse(g *db.Generation, resp *GenerationResponse) {
	g.Status = resp.Status
	g.JobID = resp.JobID
	g.Prompt = resp.Prompt
	g.Duration = resp.Duration
	g.PollAttempts = resp.PollAttempts
	g.OutputURI = resp.OutputURI
	g.LocalPath = resp.LocalPath
	g.S3Key = resp.S3Key
	g.FailedPhase = resp.FailedPhase
	g.ErrorMessage = resp.ErrorMessage
}

// handleValidate records the run in the ledger and validates the request
// and its source image.
func (m *Machine) handleValidate(ctx context.Context, req *request) (*response, error) {
	genReq := req.Msg.Request
	log.Info().Str("analysis_id", genReq.AnalysisID).Msg("fsm_state_validate")

	if err := m.checkRetries(ctx, req, orchestrator.PhaseValidating); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &GenerationResponse{}
	}

	g, err := m.repo.GetByAnalysisID(genReq.AnalysisID)
	if err != nil {
		log.Error().Err(err).Str("analysis_id", genReq.AnalysisID).Msg("database_check_failed")
		return nil, m.fail(req, resp, orchestrator.PhaseValidating, errors.Wrap(err, "database error"))
	}

	switch {
	case g == nil:
		g = &db.Generation{
			AnalysisID:  genReq.AnalysisID,
			SourceImage: genReq.SourceImage,
			Status:      db.StatusPending,
		}
		if err := m.repo.Create(g); err != nil {
			log.Error().Err(err).Str("analysis_id", genReq.AnalysisID).Msg("create_generation_failed")
			return nil, errors.Wrap(err, "failed to create generation record")
		}
		log.Info().Str("analysis_id", genReq.AnalysisID).Int64("generation_id", g.ID).Msg("generation_created")
	case g.Status == db.StatusPending || g.Status == db.StatusFailed:
		log.Info().Str("analysis_id", genReq.AnalysisID).Int64("generation_id", g.ID).Str("status", g.Status).Msg("generation_restarted")
		*g = db.Generation{ID: g.ID, AnalysisID: g.AnalysisID, SourceImage: genReq.SourceImage, Status: db.StatusPending}
		if err := m.repo.Update(g); err != nil {
			return nil, errors.Wrap(err, "failed to reset generation record")
		}
	default:
		log.Error().Str("analysis_id", genReq.AnalysisID).Str("status", g.Status).Msg("generation_already_recorded")
		return nil, m.fail(req, resp, orchestrator.PhaseValidating,
			fmt.Errorf("analysis %s already recorded with status %s", genReq.AnalysisID, g.Status))
	}
	resp.GenerationID = g.ID

	if err := m.orch.ValidateRequest(ctx, genReq, m.observer(genReq.AnalysisID)); err != nil {
		return nil, m.fail(req, resp, orchestrator.PhaseValidating, err)
	}

	return fsm.NewResponse(resp), nil
}

// handleSubmit creates the provider job
func (m *Machine) handleSubmit(ctx context.Context, req *request) (*response, error) {
	genReq := req.Msg.Request
	log.Info().Str("analysis_id", genReq.AnalysisID).Msg("fsm_state_submit")

	if err := m.checkRetries(ctx, req, orchestrator.PhaseGenerating); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, m.fail(req, nil, orchestrator.PhaseGenerating, errResponseMissing)
	}

	// A replay after the job was created must not submit a second one.
	if resp.JobID == "" {
		handle, err := m.orch.CreateJob(ctx, genReq, m.observer(genReq.AnalysisID))
		if err != nil {
			return nil, m.fail(req, resp, orchestrator.PhaseGenerating, err)
		}
		resp.JobID = string(handle)
		resp.Prompt = orchestrator.MotionPrompt(genReq.Options)
		resp.Duration = orchestrator.ClipDuration(genReq.Options.Tempo, len(genReq.BeatTimestamps))
	}
	resp.Status = db.StatusSubmitted

	if err := m.record(req, resp); err != nil {
		return nil, err
	}

	return fsm.NewResponse(resp), nil
}

// handlePoll waits for the job to reach a terminal status
func (m *Machine) handlePoll(ctx context.Context, req *request) (*response, error) {
	genReq := req.Msg.Request
	log.Info().Str("analysis_id", genReq.AnalysisID).Msg("fsm_state_poll")

	if err := m.checkRetries(ctx, req, orchestrator.PhaseProcessing); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, m.fail(req, nil, orchestrator.PhaseProcessing, errResponseMissing)
	}
	if resp.OutputURI == "" {
		if err := m.repo.UpdateStatus(resp.GenerationID, db.StatusPolling, ""); err != nil {
			log.Error().Err(err).Int64("generation_id", resp.GenerationID).Str("status", db.StatusPolling).Msg("status_update_failed")
			return nil, errors.Wrap(err, "failed to update status")
		}

		result, err := m.orch.PollUntilTerminal(ctx, orchestrator.JobHandle(resp.JobID), m.observer(genReq.AnalysisID))
		if err != nil {
			var timeout *orchestrator.TimeoutError
			if errors.As(err, &timeout) {
				resp.PollAttempts = timeout.Attempts
			}
			return nil, m.fail(req, resp, orchestrator.PhaseProcessing, err)
		}
		resp.PollAttempts = result.Attempts
		resp.OutputURI = result.OutputURIs[0]
	}
	resp.Status = db.StatusPolling

	if err := m.record(req, resp); err != nil {
		return nil, err
	}

	return fsm.NewResponse(resp), nil
}

// handleDownload stores the output locally and mirrors it when configured
func (m *Machine) handleDownload(ctx context.Context, req *request) (*response, error) {
	genReq := req.Msg.Request
	log.Info().Str("analysis_id", genReq.AnalysisID).Msg("fsm_state_download")

	if err := m.checkRetries(ctx, req, orchestrator.PhaseDownloading); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, m.fail(req, nil, orchestrator.PhaseDownloading, errResponseMissing)
	}
	if err := m.repo.UpdateStatus(resp.GenerationID, db.StatusDownloading, ""); err != nil {
		log.Error().Err(err).Int64("generation_id", resp.GenerationID).Str("status", db.StatusDownloading).Msg("status_update_failed")
		return nil, errors.Wrap(err, "failed to update status")
	}

	if resp.LocalPath == "" {
		filename := orchestrator.VideoFileName(orchestrator.JobHandle(resp.JobID))
		localPath, err := m.orch.DownloadWithRetry(ctx, resp.OutputURI, filename, genReq.AnalysisID, m.observer(genReq.AnalysisID))
		if err != nil {
			return nil, m.fail(req, resp, orchestrator.PhaseDownloading, err)
		}
		resp.LocalPath = localPath
	}

	if m.mirror != nil && resp.S3Key == "" {
		m.mirrorArtifact(ctx, genReq.AnalysisID, resp)
	}
	resp.Status = db.StatusDownloading

	if err := m.record(req, resp); err != nil {
		return nil, err
	}

	return fsm.NewResponse(resp), nil
}

// mirrorArtifact uploads the local file. Failures leave the run complete
// with only the local copy.
func (m *Machine) mirrorArtifact(ctx context.Context, analysisID string, resp *GenerationResponse) {
	abs, err := m.store.AbsPath(resp.LocalPath)
	if err != nil {
		log.Warn().Err(err).Str("analysis_id", analysisID).Msg("artifact_mirror_skipped")
		return
	}
	key := m.mirror.Key(analysisID, path.Base(resp.LocalPath))
	result, err := m.mirror.Upload(ctx, abs, key, "video/mp4")
	if err != nil {
		log.Warn().Err(err).Str("analysis_id", analysisID).Str("s3_key", key).Msg("artifact_mirror_failed")
		return
	}
	resp.S3Key = result.Key
	resp.SHA256 = result.SHA256
}

// handleComplete marks the run complete and writes the run record
func (m *Machine) handleComplete(ctx context.Context, req *request) (*response, error) {
	genReq := req.Msg.Request
	log.Info().Str("analysis_id", genReq.AnalysisID).Msg("fsm_state_complete")

	if err := m.checkRetries(ctx, req, orchestrator.PhaseComplete); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, m.fail(req, nil, orchestrator.PhaseComplete, errResponseMissing)
	}
	resp.Status = db.StatusComplete
	resp.ErrorMessage = ""

	artifact := &orchestrator.Artifact{
		AnalysisID: genReq.AnalysisID,
		JobID:      resp.JobID,
		OutputURI:  resp.OutputURI,
		LocalPath:  resp.LocalPath,
	}
	if _, err := m.store.WriteJSON(genReq.AnalysisID, RunRecordName, RunRecord{
		Request:  genReq,
		Artifact: artifact,
		Prompt:   resp.Prompt,
		Duration: resp.Duration,
		S3Key:    resp.S3Key,
		SHA256:   resp.SHA256,
	}); err != nil {
		log.Warn().Err(err).Str("analysis_id", genReq.AnalysisID).Msg("run_record_write_failed")
	}

	if err := m.record(req, resp); err != nil {
		return nil, err
	}

	m.orch.ReportComplete(m.observer(genReq.AnalysisID), artifact)
	log.Info().Str("analysis_id", genReq.AnalysisID).Str("local_path", resp.LocalPath).Str("status", db.StatusComplete).Msg("fsm_complete")

	return fsm.NewResponse(resp), nil
}

// record copies resp into the ledger row. Load and update errors are
// retried by the fsm; a missing row fails the run.
func (m *Machine) record(req *request, resp *GenerationResponse) error {
	analysisID := req.Msg.Request.AnalysisID
	g, err := m.repo.GetByAnalysisID(analysisID)
	if err != nil {
		return errors.Wrap(err, "failed to load generation")
	}
	if g == nil {
		return m.fail(req, resp, recordPhase(resp.Status), fmt.Errorf("generation %s not found in database", analysisID))
	}
	applyResponse(g, resp)
	if err := m.repo.Update(g); err != nil {
		log.Error().Err(err).Int64("generation_id", g.ID).Msg("generation_update_failed")
		return errors.Wrap(err, "failed to update generation")
	}
	return nil
}

// recordPhase maps the ledger status being written to the phase reported
// when recording fails.
func recordPhase(status string) orchestrator.Phase {
	switch status {
	case db.StatusSubmitted:
		return orchestrator.PhaseGenerating
	case db.StatusPolling:
		return orchestrator.PhaseProcessing
	case db.StatusDownloading:
		return orchestrator.PhaseDownloading
	default:
		return orchestrator.PhaseComplete
	}
}

// RunRecordName is the audit file written next to a finished artifact.
const RunRecordName = "run.json"

// RunRecord is the audit document for a completed run.
type RunRecord struct {
	Request  orchestrator.GenerationRequest `json:"request"`
	Artifact *orchestrator.Artifact         `json:"artifact"`
	Prompt   string                         `json:"prompt"`
	Duration int                            `json:"duration"`
	S3Key    string                         `json:"s3Key,omitempty"`
	SHA256   string                         `json:"sha256,omitempty"`
}
