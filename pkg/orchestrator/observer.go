package orchestrator

import (
	"sync"
	"time"
)

// Phase names a stage of a run as reported to observers.
type Phase string

const (
	PhaseValidating  Phase = "validating"
	PhaseGenerating  Phase = "generating"
	PhaseProcessing  Phase = "processing"
	PhaseDownloading Phase = "downloading"
	PhaseComplete    Phase = "complete"
	PhaseError       Phase = "error"
)

// ProgressEvent is one progress notification.
type ProgressEvent struct {
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message"`
	Percent   *int      `json:"percentComplete,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives progress events for a single run.
type Observer interface {
	OnProgress(ProgressEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ProgressEvent)

func (f ObserverFunc) OnProgress(ev ProgressEvent) { f(ev) }

type nopObserver struct{}

func (nopObserver) OnProgress(ProgressEvent) {}

// MultiObserver fans events out to every non-nil observer in order.
func MultiObserver(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(ev ProgressEvent) {
		for _, o := range list {
			o.OnProgress(ev)
		}
	})
}

// Recorder keeps every event it sees.
type Recorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *Recorder) OnProgress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.events...)
}

// Phases returns the phase of each recorded event in order.
func (r *Recorder) Phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Phase
	}
	return out
}

// Broadcaster is an Observer that forwards events to any number of
// subscribers. Subscribers must call the returned cancel func when done.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Observer
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]Observer)}
}

// Subscribe registers o and returns the func that removes it.
func (b *Broadcaster) Subscribe(o Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = o
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len returns the number of live subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) OnProgress(ev ProgressEvent) {
	b.mu.RLock()
	subs := make([]Observer, 0, len(b.subs))
	for _, o := range b.subs {
		subs = append(subs, o)
	}
	b.mu.RUnlock()
	for _, o := range subs {
		o.OnProgress(ev)
	}
}

func percent(v int) *int { return &v }

// pollPercent is a capped estimate since the provider does not expose
// real progress.
func pollPercent(attempt, maxAttempts int) int {
	if maxAttempts <= 0 {
		return 0
	}
	p := attempt * 100 / maxAttempts
	if p > 90 {
		p = 90
	}
	return p
}
