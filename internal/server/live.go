package server

import (
	"sync"

	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
)

// liveRun is one in-flight generate stream. Every listener, including the
// originating request, subscribes to events.
type liveRun struct {
	events *orchestrator.Broadcaster
	done   chan struct{}
}

// liveRuns indexes in-flight runs by analysis ID.
type liveRuns struct {
	mu   sync.Mutex
	runs map[string]*liveRun
}

func newLiveRuns() *liveRuns {
	return &liveRuns{runs: make(map[string]*liveRun)}
}

// add registers a run for id. It reports false when id is already running.
func (l *liveRuns) add(id string) (*liveRun, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.runs[id]; ok {
		return nil, false
	}
	run := &liveRun{events: orchestrator.NewBroadcaster(), done: make(chan struct{})}
	l.runs[id] = run
	return run, true
}

func (l *liveRuns) get(id string) *liveRun {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runs[id]
}

// remove drops the run and releases its listeners.
func (l *liveRuns) remove(id string, run *liveRun) {
	l.mu.Lock()
	if l.runs[id] == run {
		delete(l.runs, id)
	}
	l.mu.Unlock()
	close(run.done)
}
