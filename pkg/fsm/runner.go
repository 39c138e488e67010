package fsm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/superfly/fsm"

	"github.com/Fato07/runway-music-video-generator/pkg/db"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
	"github.com/Fato07/runway-music-video-generator/pkg/results"
)

// RunFailedError is returned by Runner.Generate when the workflow ended in
// the failed state.
type RunFailedError struct {
	AnalysisID string
	Phase      string
	Message    string
}

func (e *RunFailedError) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("generation %s failed: %s", e.AnalysisID, e.Message)
	}
	return fmt.Sprintf("generation %s failed during %s: %s", e.AnalysisID, e.Phase, e.Message)
}

// Runner owns an fsm manager with the generation workflow registered.
type Runner struct {
	manager *fsm.Manager
	machine *Machine
	repo    *db.Repository
	start   fsm.Start[GenerationRequest, GenerationResponse]
	now     func() time.Time
}

// NewRunner opens the fsm store at dbPath and registers machine.
func NewRunner(ctx context.Context, dbPath string, machine *Machine) (*Runner, error) {
	manager, err := fsm.New(fsm.Config{DBPath: dbPath})
	if err != nil {
		return nil, errors.Wrap(err, "FSM manager failed")
	}

	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		manager.Shutdown(time.Second)
		return nil, errors.Wrap(err, "FSM register failed")
	}

	return &Runner{
		manager: manager,
		machine: machine,
		repo:    machine.repo,
		start:   start,
		now:     time.Now,
	}, nil
}

// Generate runs one request through the workflow and returns its ledger
// row. obs receives every progress event of the run and always sees a
// terminal complete or error event before Generate returns.
func (r *Runner) Generate(ctx context.Context, req orchestrator.GenerationRequest, obs orchestrator.Observer) (*db.Generation, error) {
	if req.AnalysisID == "" {
		req.AnalysisID = results.NewAnalysisID(req.Options.AnalysisFileName, r.now())
	}
	tracker := &outcomeTracker{obs: orchestrator.MultiObserver(obs)}
	defer r.machine.Observe(req.AnalysisID, tracker)()

	g, err := r.run(ctx, req, tracker)
	if err != nil && !tracker.reported() {
		log.Warn().Err(err).Str("analysis_id", req.AnalysisID).Msg("run_ended_unreported")
		tracker.OnProgress(orchestrator.ProgressEvent{
			Phase:     orchestrator.PhaseError,
			Message:   err.Error(),
			Timestamp: r.now().UTC(),
		})
	}
	return g, err
}

func (r *Runner) run(ctx context.Context, req orchestrator.GenerationRequest, tracker *outcomeTracker) (*db.Generation, error) {
	version, err := r.start(ctx, req.AnalysisID, fsm.NewRequest(&GenerationRequest{Request: req}, &GenerationResponse{}))
	if err != nil {
		return nil, errors.Wrap(err, "FSM start failed")
	}
	log.Info().Str("analysis_id", req.AnalysisID).Str("version", fmt.Sprint(version)).Msg("fsm_started")

	waitErr := r.manager.Wait(ctx, version)
	if waitErr != nil && ctx.Err() != nil {
		return nil, errors.Wrap(ctx.Err(), "generation abandoned")
	}

	g, err := r.repo.GetByAnalysisID(req.AnalysisID)
	if err != nil {
		return nil, err
	}
	switch {
	case g == nil:
		if waitErr != nil {
			return nil, errors.Wrap(waitErr, "FSM execution failed")
		}
		return nil, fmt.Errorf("generation %s not recorded", req.AnalysisID)
	case g.Status == db.StatusFailed:
		return g, &RunFailedError{AnalysisID: g.AnalysisID, Phase: g.FailedPhase, Message: g.ErrorMessage}
	case waitErr != nil:
		return g, errors.Wrap(waitErr, "FSM execution failed")
	case g.Status != db.StatusComplete:
		return g, &RunFailedError{AnalysisID: g.AnalysisID, Message: "workflow ended with status " + g.Status}
	}
	// A run rejected before touching the ledger leaves an earlier complete
	// row in place; its error event is the outcome.
	if msg, failed := tracker.failure(); failed {
		return g, &RunFailedError{AnalysisID: g.AnalysisID, Phase: string(orchestrator.PhaseValidating), Message: msg}
	}
	return g, nil
}

// outcomeTracker forwards events and remembers the terminal one.
type outcomeTracker struct {
	obs orchestrator.Observer

	mu       sync.Mutex
	terminal *orchestrator.ProgressEvent
}

func (t *outcomeTracker) OnProgress(ev orchestrator.ProgressEvent) {
	if ev.Phase == orchestrator.PhaseComplete || ev.Phase == orchestrator.PhaseError {
		t.mu.Lock()
		if t.terminal == nil {
			t.terminal = &ev
		}
		t.mu.Unlock()
	}
	t.obs.OnProgress(ev)
}

func (t *outcomeTracker) reported() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal != nil
}

func (t *outcomeTracker) failure() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal == nil || t.terminal.Phase != orchestrator.PhaseError {
		return "", false
	}
	return t.terminal.Message, true
}

// Shutdown stops the fsm manager, waiting up to timeout for running
// transitions.
func (r *Runner) Shutdown(timeout time.Duration) {
	r.manager.Shutdown(timeout)
}
