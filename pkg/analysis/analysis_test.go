package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "beats": [0.48, 0.95, 1.42, 1.9],
  "tempo": 126.05,
  "segments": [
    {"start": 0, "end": 10, "mood": "calm", "description": "soft piano intro"},
    {"start": 10, "end": 20, "mood": "calm", "description": "strings enter"},
    {"start": 20, "end": 35, "mood": "energetic", "description": "drop"},
    {"start": 35, "end": 42.5, "mood": "dramatic", "description": "outro"}
  ]
}`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	r, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 126.05, r.Tempo, 1e-9)
	assert.Len(t, r.Beats, 4)
	assert.Equal(t, "calm", r.OverallMood())
	assert.Equal(t, 42.5, r.Duration())
	assert.Equal(t, []Transition{
		{From: "calm", To: "energetic", Time: 20},
		{From: "energetic", To: "dramatic", Time: 35},
	}, r.MoodTransitions())
	assert.Equal(t, "from calm to energetic, from energetic to dramatic", r.DescribeTransitions())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestOverallMoodWithoutSegments(t *testing.T) {
	r := &Result{Tempo: 90, Beats: []float64{1, 2}}
	assert.Equal(t, NeutralMood, r.OverallMood())
	assert.Empty(t, r.MoodTransitions())
	assert.Equal(t, "", r.DescribeTransitions())
	assert.Equal(t, 2.0, r.Duration())
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"zero tempo":       `{"tempo": 0, "beats": [], "segments": []}`,
		"decreasing beats": `{"tempo": 100, "beats": [1.0, 0.5], "segments": []}`,
		"inverted segment": `{"tempo": 100, "beats": [], "segments": [{"start": 5, "end": 2, "mood": "calm"}]}`,
		"overlapping":      `{"tempo": 100, "beats": [], "segments": [{"start": 0, "end": 5, "mood": "calm"}, {"start": 4, "end": 8, "mood": "calm"}]}`,
		"not json":         `{"tempo":`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
