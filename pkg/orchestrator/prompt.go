package orchestrator

import (
	"fmt"
	"strings"
)

// Mood is the dominant feel of the track as reported by the analyzer.
type Mood string

const (
	MoodEnergetic  Mood = "energetic"
	MoodCalm       Mood = "calm"
	MoodMysterious Mood = "mysterious"
	MoodDramatic   Mood = "dramatic"
)

const genericMotionPhrase = "smooth camera movement"

// Known reports whether the mood has a dedicated camera phrase.
func (m Mood) Known() bool {
	switch m.normalized() {
	case MoodEnergetic, MoodCalm, MoodMysterious, MoodDramatic:
		return true
	default:
		return false
	}
}

// Phrase maps the mood to a camera movement description. Unknown moods
// get the generic phrase.
func (m Mood) Phrase() string {
	switch m.normalized() {
	case MoodEnergetic:
		return "dynamic camera movement with quick pans and energetic zooms"
	case MoodCalm:
		return "gentle floating camera drift with slow, soft motion"
	case MoodMysterious:
		return "slow creeping dolly through drifting shadows and haze"
	case MoodDramatic:
		return "sweeping crane shot with bold cinematic reveals"
	default:
		return genericMotionPhrase
	}
}

func (m Mood) normalized() Mood {
	return Mood(strings.ToLower(strings.TrimSpace(string(m))))
}

// Pacing buckets the tempo into a motion pacing descriptor.
type Pacing int

const (
	PacingSlow Pacing = iota
	PacingSteady
	PacingSwift
)

// PacingFor returns the pacing bucket for a tempo in BPM.
func PacingFor(bpm float64) Pacing {
	switch {
	case bpm > 140:
		return PacingSwift
	case bpm > 100:
		return PacingSteady
	default:
		return PacingSlow
	}
}

func (p Pacing) String() string {
	switch p {
	case PacingSwift:
		return "swift and fluid"
	case PacingSteady:
		return "steady and rhythmic"
	default:
		return "slow and measured"
	}
}

const (
	shortClipSeconds = 5
	longClipSeconds  = 10
)

// ClipDuration picks the clip length in seconds. Fast or busy tracks get
// the short clip.
func ClipDuration(bpm float64, beatCount int) int {
	if bpm > 120 || beatCount > 16 {
		return shortClipSeconds
	}
	return longClipSeconds
}

// MotionPrompt builds the text prompt sent alongside the source image.
func MotionPrompt(opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %s pacing.", opts.Mood.Phrase(), PacingFor(opts.Tempo))

	intensity := opts.MotionIntensity
	if intensity == "" {
		intensity = IntensityForTempo(opts.Tempo)
	}
	fmt.Fprintf(&b, " Motion intensity: %s.", intensity)

	if style := strings.TrimSpace(opts.TransitionStyle); style != "" {
		fmt.Fprintf(&b, " Transitions: %s.", style)
	}
	return b.String()
}
