package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fato07/runway-music-video-generator/pkg/analysis"
	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
)

func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func sampleTrack(t *testing.T) *analysis.Result {
	t.Helper()
	track, err := analysis.Parse([]byte(`{
		"beats": [0.5, 1.0, 1.5, 2.0],
		"tempo": 128,
		"segments": [
			{"start": 0, "end": 10, "mood": "energetic", "description": "intro"},
			{"start": 10, "end": 20, "mood": "calm", "description": "verse"}
		]
	}`))
	require.NoError(t, err)
	return track
}

func TestBuildRequestFromAnalysis(t *testing.T) {
	flags := generateFlags{analysisPath: "/tmp/tracks/song.json", aspect: "9:16"}

	req := buildRequest("https://img.example/scene.png", flags, sampleTrack(t), changedSet())

	require.NoError(t, req.Validate())
	assert.Equal(t, []float64{0.5, 1.0, 1.5, 2.0}, req.BeatTimestamps)
	assert.Equal(t, 128.0, req.Options.Tempo)
	assert.Equal(t, orchestrator.MoodEnergetic, req.Options.Mood)
	assert.Equal(t, orchestrator.IntensityModerate, req.Options.MotionIntensity)
	assert.Equal(t, "from energetic to calm", req.Options.TransitionStyle)
	assert.Equal(t, orchestrator.AspectPortrait, req.Options.AspectRatio)
	assert.Equal(t, "song.json", req.Options.AnalysisFileName)
}

func TestBuildRequestFlagOverrides(t *testing.T) {
	flags := generateFlags{
		analysisPath: "song.json",
		mood:         "dramatic",
		tempo:        150,
		intensity:    "subtle",
		transition:   "hard cuts on the downbeat",
		aspect:       "16:9",
	}

	req := buildRequest("https://img.example/scene.png", flags, sampleTrack(t), changedSet("mood", "tempo", "transition"))

	assert.Equal(t, orchestrator.MoodDramatic, req.Options.Mood)
	assert.Equal(t, 150.0, req.Options.Tempo)
	assert.Equal(t, orchestrator.IntensitySubtle, req.Options.MotionIntensity)
	assert.Equal(t, "hard cuts on the downbeat", req.Options.TransitionStyle)
}

func TestBuildRequestWithoutAnalysis(t *testing.T) {
	flags := generateFlags{tempo: 90, aspect: "16:9"}

	req := buildRequest("https://img.example/scene.png", flags, nil, changedSet("tempo"))

	require.NoError(t, req.Validate())
	assert.Empty(t, req.BeatTimestamps)
	assert.Equal(t, orchestrator.IntensitySubtle, req.Options.MotionIntensity)
	assert.Equal(t, "scene.png", req.Options.AnalysisFileName)

	req = buildRequest("https://img.example/scene.png", generateFlags{aspect: "16:9"}, nil, changedSet())
	assert.Error(t, req.Validate())
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf)
	pct := 42
	p.OnProgress(orchestrator.ProgressEvent{Phase: orchestrator.PhaseProcessing, Message: "Processing video (attempt 14/30)", Percent: &pct})
	p.OnProgress(orchestrator.ProgressEvent{Phase: orchestrator.PhaseValidating, Message: "Validating input"})

	assert.Equal(t,
		"[processing ]  42%  Processing video (attempt 14/30)\n"+
			"[validating ]       Validating input\n",
		buf.String())
}
