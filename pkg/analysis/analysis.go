// Package analysis reads the beat and mood analysis produced for an audio
// track and derives the inputs a generation run needs from it.
package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Fato07/runway-music-video-generator/pkg/errors"
)

// NeutralMood is reported when the analysis carries no segments.
const NeutralMood = "neutral"

// Segment is one mood-homogeneous span of the track, in seconds.
type Segment struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Mood        string  `json:"mood"`
	Description string  `json:"description"`
}

// Result is the analyzer output.
type Result struct {
	Beats    []float64 `json:"beats"`
	Tempo    float64   `json:"tempo"`
	Segments []Segment `json:"segments"`
}

// Transition marks a change of mood between consecutive segments.
type Transition struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Time float64 `json:"time"`
}

// Load reads and validates an analysis document.
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read analysis")
	}
	return Parse(data)
}

// Parse decodes and validates an analysis document.
func Parse(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "failed to decode analysis")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks that the tempo is positive, beats are non-decreasing and
// segments are ordered and non-overlapping.
func (r *Result) Validate() error {
	if r.Tempo <= 0 {
		return fmt.Errorf("analysis: tempo must be positive, got %g", r.Tempo)
	}
	for i := 1; i < len(r.Beats); i++ {
		if r.Beats[i] < r.Beats[i-1] {
			return fmt.Errorf("analysis: beat %d at %gs precedes beat %d at %gs", i, r.Beats[i], i-1, r.Beats[i-1])
		}
	}
	for i, s := range r.Segments {
		if s.End < s.Start {
			return fmt.Errorf("analysis: segment %d ends before it starts", i)
		}
		if i > 0 && s.Start < r.Segments[i-1].End {
			return fmt.Errorf("analysis: segment %d overlaps segment %d", i, i-1)
		}
	}
	return nil
}

// OverallMood is the first segment's mood.
func (r *Result) OverallMood() string {
	if len(r.Segments) == 0 || strings.TrimSpace(r.Segments[0].Mood) == "" {
		return NeutralMood
	}
	return r.Segments[0].Mood
}

// MoodTransitions lists every point where the mood changes between
// consecutive segments.
func (r *Result) MoodTransitions() []Transition {
	var out []Transition
	for i := 1; i < len(r.Segments); i++ {
		prev, cur := r.Segments[i-1], r.Segments[i]
		if !strings.EqualFold(prev.Mood, cur.Mood) {
			out = append(out, Transition{From: prev.Mood, To: cur.Mood, Time: cur.Start})
		}
	}
	return out
}

// DescribeTransitions renders the transitions as "from a to b, from b to c".
func (r *Result) DescribeTransitions() string {
	transitions := r.MoodTransitions()
	parts := make([]string, len(transitions))
	for i, t := range transitions {
		parts[i] = "from " + t.From + " to " + t.To
	}
	return strings.Join(parts, ", ")
}

// Duration is the end of the last segment, or the last beat when there are
// no segments.
func (r *Result) Duration() float64 {
	if n := len(r.Segments); n > 0 {
		return r.Segments[n-1].End
	}
	if n := len(r.Beats); n > 0 {
		return r.Beats[n-1]
	}
	return 0
}
