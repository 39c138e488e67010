package results

import (
	"context"
	"strings"
	"time"

	"github.com/Fato07/runway-music-video-generator/pkg/analysis"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
)

// Audit file names written per analysis.
const (
	AnalysisFile = "analysis.json"
	SceneFile    = "scene.json"
	ImageFile    = "image.json"
	ImageCopy    = "generated-image.png"
)

// AuditLog is the record of how a track's scene image was produced.
type AuditLog struct {
	AnalysisID       string          `json:"analysisId,omitempty"`
	AudioFileName    string          `json:"audioFileName"`
	AnalysisResults  analysis.Result `json:"analysisResults"`
	ScenePrompt      string          `json:"scenePrompt"`
	SceneDescription string          `json:"sceneDescription"`
	ImagePrompt      string          `json:"imagePrompt"`
	ImageURL         string          `json:"imageUrl"`
}

type scenePrompt struct {
	Prompt      string `json:"prompt"`
	Description string `json:"description"`
}

type imagePrompt struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
}

// WriteAudit stores the analysis, scene and image documents and a copy of
// the image. It returns the analysis ID used, generating one when the log
// carries none.
func (s *Store) WriteAudit(ctx context.Context, entry AuditLog, now time.Time) (string, error) {
	id := entry.AnalysisID
	if id == "" {
		id = NewAnalysisID(entry.AudioFileName, now)
	}

	if _, err := s.WriteJSON(id, AnalysisFile, entry.AnalysisResults); err != nil {
		return "", err
	}
	if _, err := s.WriteJSON(id, SceneFile, scenePrompt{Prompt: entry.ScenePrompt, Description: entry.SceneDescription}); err != nil {
		return "", err
	}
	if _, err := s.WriteJSON(id, ImageFile, imagePrompt{Prompt: entry.ImagePrompt, URL: entry.ImageURL}); err != nil {
		return "", err
	}
	if strings.TrimSpace(entry.ImageURL) != "" {
		if _, err := s.Download(ctx, entry.ImageURL, ImageCopy, id); err != nil {
			return id, errors.Wrap(err, "failed to copy generated image")
		}
	}
	return id, nil
}
