package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
)

func feed(o *RunObserver, start time.Time, phases ...orchestrator.Phase) {
	for i, p := range phases {
		o.OnProgress(orchestrator.ProgressEvent{Phase: p, Timestamp: start.Add(time.Duration(i) * time.Second)})
	}
}

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestRunObserverComplete(t *testing.T) {
	completeBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("complete"))
	processingBefore := testutil.ToFloat64(PhaseEventsTotal.WithLabelValues("processing"))
	activeBefore := testutil.ToFloat64(ActiveRuns)
	pollsBefore := sampleCount(t, PollAttempts)
	durationBefore := sampleCount(t, RunDuration)

	o := NewRunObserver()
	feed(o, time.Unix(1_700_000_000, 0),
		orchestrator.PhaseValidating,
		orchestrator.PhaseGenerating,
		orchestrator.PhaseProcessing,
		orchestrator.PhaseProcessing,
		orchestrator.PhaseProcessing,
		orchestrator.PhaseDownloading,
		orchestrator.PhaseComplete,
	)

	assert.Equal(t, completeBefore+1, testutil.ToFloat64(RunsTotal.WithLabelValues("complete")))
	assert.Equal(t, processingBefore+3, testutil.ToFloat64(PhaseEventsTotal.WithLabelValues("processing")))
	assert.Equal(t, activeBefore, testutil.ToFloat64(ActiveRuns))
	assert.Equal(t, pollsBefore+1, sampleCount(t, PollAttempts))
	assert.Equal(t, durationBefore+1, sampleCount(t, RunDuration))
}

func TestRunObserverIgnoresEventsAfterTerminal(t *testing.T) {
	errorsBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("error"))
	activeBefore := testutil.ToFloat64(ActiveRuns)

	o := NewRunObserver()
	feed(o, time.Unix(1_700_000_000, 0), orchestrator.PhaseValidating)
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(ActiveRuns))

	feed(o, time.Unix(1_700_000_001, 0), orchestrator.PhaseError, orchestrator.PhaseError)

	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(RunsTotal.WithLabelValues("error")))
	assert.Equal(t, activeBefore, testutil.ToFloat64(ActiveRuns))
}

func TestRunObserverAbandon(t *testing.T) {
	cancelledBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("cancelled"))
	activeBefore := testutil.ToFloat64(ActiveRuns)

	unstarted := NewRunObserver()
	unstarted.Abandon()
	assert.Equal(t, cancelledBefore, testutil.ToFloat64(RunsTotal.WithLabelValues("cancelled")))

	o := NewRunObserver()
	feed(o, time.Now(), orchestrator.PhaseValidating, orchestrator.PhaseProcessing)
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(ActiveRuns))

	o.Abandon()
	o.Abandon()
	assert.Equal(t, activeBefore, testutil.ToFloat64(ActiveRuns))
	assert.Equal(t, cancelledBefore+1, testutil.ToFloat64(RunsTotal.WithLabelValues("cancelled")))

	// A late terminal event from the still-running workflow is ignored.
	completeBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("complete"))
	feed(o, time.Now(), orchestrator.PhaseComplete)
	assert.Equal(t, completeBefore, testutil.ToFloat64(RunsTotal.WithLabelValues("complete")))
	assert.Equal(t, activeBefore, testutil.ToFloat64(ActiveRuns))
}
