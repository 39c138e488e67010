// Package fsm runs generation jobs as a durable workflow on superfly/fsm.
// Each orchestration stage is a state; progress and outcome are recorded in
// the generation ledger so a run can be inspected after the process exits.
package fsm

import (
	"context"
	"sync"

	"github.com/superfly/fsm"

	"github.com/Fato07/runway-music-video-generator/pkg/db"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
	"github.com/Fato07/runway-music-video-generator/pkg/results"
	"github.com/Fato07/runway-music-video-generator/pkg/storage"
)

// Mirror copies finished artifacts to remote storage.
type Mirror interface {
	Key(analysisID, filename string) string
	Upload(ctx context.Context, localPath, key, contentType string) (*storage.UploadResult, error)
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo       *db.Repository
	orch       *orchestrator.Orchestrator
	store      *results.Store
	mirror     Mirror
	maxRetries int

	mu        sync.RWMutex
	nextObs   uint64
	observers map[string]observerEntry
}

type observerEntry struct {
	id  uint64
	obs orchestrator.Observer
}

// NewMachine creates a new FSM machine with dependencies. mirror may be nil.
func NewMachine(
	repo *db.Repository,
	orch *orchestrator.Orchestrator,
	store *results.Store,
	mirror Mirror,
	maxRetries int,
) *Machine {
	return &Machine{
		repo:       repo,
		orch:       orch,
		store:      store,
		mirror:     mirror,
		maxRetries: maxRetries,
		observers:  make(map[string]observerEntry),
	}
}

// Register registers the generation FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[GenerationRequest, GenerationResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[GenerationRequest, GenerationResponse](manager, "video-generate").
		Start(StateValidate, m.handleValidate).
		To(StateSubmit, m.handleSubmit).
		To(StatePoll, m.handlePoll).
		To(StateDownload, m.handleDownload).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Observe routes progress events of runID to obs until the returned func
// is called. A second registration for the same run replaces the first.
func (m *Machine) Observe(runID string, obs orchestrator.Observer) (unsubscribe func()) {
	m.mu.Lock()
	m.nextObs++
	id := m.nextObs
	m.observers[runID] = observerEntry{id: id, obs: obs}
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.observers[runID].id == id {
				delete(m.observers, runID)
			}
			m.mu.Unlock()
		})
	}
}

func (m *Machine) observer(runID string) orchestrator.Observer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observers[runID].obs
}

// Observed returns the number of runs with a registered observer.
func (m *Machine) Observed() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers)
}
