package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Fato07/runway-music-video-generator/internal/metrics"
	"github.com/Fato07/runway-music-video-generator/pkg/db"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
	"github.com/Fato07/runway-music-video-generator/pkg/fsm"
	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
	"github.com/Fato07/runway-music-video-generator/pkg/results"
	"github.com/Fato07/runway-music-video-generator/pkg/security"
)

const (
	maxBodyBytes = 1 << 20
	eventBuffer  = 64
)

type handlers struct {
	store  *results.Store
	gen    Generator
	client *http.Client
	live   *liveRuns
	now    func() time.Time
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response_encode_failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// proxyImage relays an image so browsers and the validator can read it
// without cross-origin restrictions.
func (h *handlers) proxyImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "No URL provided")
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		writeError(w, http.StatusBadRequest, "Invalid URL")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", raw).Msg("proxy_image_failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to fetch image: %s", resp.Status))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", fmt.Sprint(resp.ContentLength))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Warn().Err(err).Str("url", raw).Msg("proxy_image_copy_failed")
	}
}

type downloadRequest struct {
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	AnalysisID string `json:"analysisId"`
}

func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.URL) == "" || strings.TrimSpace(body.Filename) == "" || strings.TrimSpace(body.AnalysisID) == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	rel, err := h.store.Download(r.Context(), body.URL, body.Filename, body.AnalysisID)
	switch {
	case errors.Is(err, security.ErrUnsafePath):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		log.Error().Err(err).Str("analysis_id", body.AnalysisID).Msg("download_failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"filePath": rel})
	}
}

func (h *handlers) logResults(w http.ResponseWriter, r *http.Request) {
	var entry results.AuditLog
	if err := decodeJSON(w, r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if entry.AnalysisID == "" && strings.TrimSpace(entry.AudioFileName) == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	id, err := h.store.WriteAudit(r.Context(), entry, h.now())
	switch {
	case errors.Is(err, security.ErrUnsafePath):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		log.Error().Err(err).Str("analysis_id", id).Msg("log_results_failed")
		writeError(w, http.StatusInternalServerError, "Failed to log results")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "analysisId": id})
	}
}

type generateResult struct {
	AnalysisID   string `json:"analysisId"`
	JobID        string `json:"jobId"`
	FilePath     string `json:"filePath"`
	OutputURI    string `json:"outputUri"`
	Duration     int    `json:"duration"`
	PollAttempts int    `json:"pollAttempts"`
	S3Key        string `json:"s3Key,omitempty"`
}

type generateFailure struct {
	AnalysisID string `json:"analysisId"`
	Phase      string `json:"phase,omitempty"`
	Error      string `json:"error"`
}

type outcome struct {
	gen *db.Generation
	err error
}

// generate runs a request and streams its progress as server-sent events:
// "progress" for each event, then one "result" or "error".
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.GenerationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AnalysisID == "" {
		req.AnalysisID = results.NewAnalysisID(req.Options.AnalysisFileName, h.now())
	}

	run, ok := h.live.add(req.AnalysisID)
	if !ok {
		writeError(w, http.StatusConflict, "Generation already in progress")
		return
	}
	defer h.live.remove(req.AnalysisID, run)

	rc := startStream(w)
	ctx := r.Context()
	events := make(chan orchestrator.ProgressEvent, eventBuffer)
	defer run.events.Subscribe(orchestrator.ObserverFunc(func(ev orchestrator.ProgressEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}))()

	runMetrics := metrics.NewRunObserver()
	run.events.Subscribe(runMetrics)

	done := make(chan outcome, 1)
	go func() {
		g, err := h.gen.Generate(ctx, req, run.events)
		runMetrics.Abandon()
		done <- outcome{gen: g, err: err}
	}()

	for {
		select {
		case ev := <-events:
			writeEvent(w, rc, "progress", ev)
		case out := <-done:
			drainEvents(w, rc, events)
			h.finish(w, rc, req.AnalysisID, out)
			return
		}
	}
}

// watch follows a run started by another generate request. The stream ends
// after the run's terminal event or when the run goes away.
func (h *handlers) watch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "analysisID")
	run := h.live.get(id)
	if run == nil {
		writeError(w, http.StatusNotFound, "No generation in progress")
		return
	}

	rc := startStream(w)
	ctx := r.Context()
	events := make(chan orchestrator.ProgressEvent, eventBuffer)
	defer run.events.Subscribe(orchestrator.ObserverFunc(func(ev orchestrator.ProgressEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		case <-run.done:
		}
	}))()
	log.Debug().Str("analysis_id", id).Int("listeners", run.events.Len()).Msg("generate_watch_started")

	for {
		select {
		case ev := <-events:
			writeEvent(w, rc, "progress", ev)
			if ev.Phase == orchestrator.PhaseComplete || ev.Phase == orchestrator.PhaseError {
				return
			}
		case <-run.done:
			drainEvents(w, rc, events)
			return
		case <-ctx.Done():
			return
		}
	}
}

func startStream(w http.ResponseWriter) *http.ResponseController {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()
	return rc
}

func drainEvents(w http.ResponseWriter, rc *http.ResponseController, events <-chan orchestrator.ProgressEvent) {
	for {
		select {
		case ev := <-events:
			writeEvent(w, rc, "progress", ev)
		default:
			return
		}
	}
}

func (h *handlers) finish(w http.ResponseWriter, rc *http.ResponseController, analysisID string, out outcome) {
	if out.err != nil {
		failure := generateFailure{AnalysisID: analysisID, Error: out.err.Error()}
		var runErr *fsm.RunFailedError
		if errors.As(out.err, &runErr) {
			failure.Phase = runErr.Phase
			failure.Error = runErr.Message
		}
		log.Warn().Err(out.err).Str("analysis_id", analysisID).Msg("generate_request_failed")
		writeEvent(w, rc, "error", failure)
		return
	}

	g := out.gen
	writeEvent(w, rc, "result", generateResult{
		AnalysisID:   g.AnalysisID,
		JobID:        g.JobID,
		FilePath:     g.LocalPath,
		OutputURI:    g.OutputURI,
		Duration:     g.Duration,
		PollAttempts: g.PollAttempts,
		S3Key:        g.S3Key,
	})
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("event", name).Msg("sse_encode_failed")
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return
	}
	_ = rc.Flush()
}
