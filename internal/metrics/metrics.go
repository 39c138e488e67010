// Package metrics provides Prometheus metrics for generation runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
)

// Labels stay low-cardinality: no analysis or job IDs.
var (
	// RunsTotal counts finished runs by outcome (complete, error, cancelled).
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicvideo_runs_total",
		Help: "Total number of finished generation runs, by outcome.",
	}, []string{"outcome"})

	// PhaseEventsTotal counts progress events by phase.
	PhaseEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "musicvideo_phase_events_total",
		Help: "Total number of progress events emitted, by phase.",
	}, []string{"phase"})

	// ActiveRuns tracks runs that have started but not finished.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "musicvideo_active_runs",
		Help: "Current number of generation runs in flight.",
	})

	// PollAttempts records how many status checks each run needed.
	PollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "musicvideo_poll_attempts",
		Help:    "Number of job status polls per finished run.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 30},
	})

	// RunDuration records wall time from the first to the terminal event.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "musicvideo_run_duration_seconds",
		Help:    "Duration of generation runs in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 9),
	})
)

// RunObserver feeds the package metrics from one run's progress events.
// Create one per run.
type RunObserver struct {
	mu       sync.Mutex
	started  time.Time
	polls    int
	finished bool
}

// NewRunObserver returns an observer for a single run.
func NewRunObserver() *RunObserver {
	return &RunObserver{}
}

func (o *RunObserver) OnProgress(ev orchestrator.ProgressEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished {
		return
	}

	PhaseEventsTotal.WithLabelValues(string(ev.Phase)).Inc()

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if o.started.IsZero() {
		o.started = ts
		ActiveRuns.Inc()
	}

	switch ev.Phase {
	case orchestrator.PhaseProcessing:
		o.polls++
	case orchestrator.PhaseComplete, orchestrator.PhaseError:
		o.finished = true
		ActiveRuns.Dec()
		RunsTotal.WithLabelValues(string(ev.Phase)).Inc()
		if o.polls > 0 {
			PollAttempts.Observe(float64(o.polls))
		}
		RunDuration.Observe(ts.Sub(o.started).Seconds())
	}
}

// Abandon closes out a run that stopped without a terminal event. The run
// is counted with outcome "cancelled". It is a no-op once the run finished
// or if it never started.
func (o *RunObserver) Abandon() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished || o.started.IsZero() {
		return
	}
	o.finished = true
	ActiveRuns.Dec()
	RunsTotal.WithLabelValues("cancelled").Inc()
	RunDuration.Observe(time.Since(o.started).Seconds())
}
