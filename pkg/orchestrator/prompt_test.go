package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClipDuration(t *testing.T) {
	tests := []struct {
		bpm   float64
		beats int
		want  int
	}{
		{bpm: 121, beats: 0, want: 5},
		{bpm: 120, beats: 16, want: 10},
		{bpm: 120, beats: 17, want: 5},
		{bpm: 90, beats: 4, want: 10},
		{bpm: 175, beats: 64, want: 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClipDuration(tt.bpm, tt.beats), "bpm=%v beats=%d", tt.bpm, tt.beats)
	}
}

func TestMoodPhrase(t *testing.T) {
	for _, m := range []Mood{MoodEnergetic, MoodCalm, MoodMysterious, MoodDramatic} {
		assert.True(t, m.Known())
		assert.NotEqual(t, genericMotionPhrase, m.Phrase(), m)
	}
	assert.Equal(t, MoodEnergetic.Phrase(), Mood("  Energetic ").Phrase())
	assert.False(t, Mood("melancholic").Known())
	assert.Equal(t, genericMotionPhrase, Mood("melancholic").Phrase())
	assert.Equal(t, genericMotionPhrase, Mood("").Phrase())
}

func TestPacingFor(t *testing.T) {
	assert.Equal(t, PacingSwift, PacingFor(141))
	assert.Equal(t, PacingSteady, PacingFor(140))
	assert.Equal(t, PacingSteady, PacingFor(101))
	assert.Equal(t, PacingSlow, PacingFor(100))
}

func TestMotionPrompt(t *testing.T) {
	got := MotionPrompt(Options{Mood: MoodCalm, Tempo: 90, TransitionStyle: "crossfade"})
	assert.Equal(t, "gentle floating camera drift with slow, soft motion, slow and measured pacing. Motion intensity: subtle. Transitions: crossfade.", got)

	got = MotionPrompt(Options{Mood: "unknown", Tempo: 150, MotionIntensity: IntensityModerate})
	assert.Equal(t, "smooth camera movement, swift and fluid pacing. Motion intensity: moderate.", got)
}

func TestIntensityForTempo(t *testing.T) {
	assert.Equal(t, IntensityStrong, IntensityForTempo(160))
	assert.Equal(t, IntensityModerate, IntensityForTempo(120))
	assert.Equal(t, IntensitySubtle, IntensityForTempo(80))
}
