package results

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fato07/runway-music-video-generator/pkg/security"
)

func TestNewAnalysisID(t *testing.T) {
	now := time.Date(2024, 11, 6, 13, 45, 12, 345_000_000, time.UTC)
	assert.Equal(t, "2024-11-06T13-45-12-345Z_my_track.mp3", NewAnalysisID("my track.mp3", now))
	assert.Equal(t, "2024-11-06T13-45-12-345Z_passwd", NewAnalysisID("../../etc/passwd", now))
	assert.Equal(t, "2024-11-06T13-45-12-345Z_untitled", NewAnalysisID("", now))
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"song.wav":          "song.wav",
		"Déjà vu.mp3":       "D_j__vu.mp3",
		`C:\music\beat.mp3`: "beat.mp3",
		"..":                "untitled",
		"a/b/c.flac":        "c.flac",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFileName(in), in)
	}
}

func TestStoreDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	store, err := NewStore(t.TempDir(), srv.Client())
	require.NoError(t, err)

	rel, err := store.Download(context.Background(), srv.URL+"/out.mp4", "video-task.mp4", "run-1")
	require.NoError(t, err)
	assert.Equal(t, "/results/run-1/video-task.mp4", rel)

	abs, err := store.AbsPath(rel)
	require.NoError(t, err)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))

	_, err = os.Stat(abs + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestStoreDownloadUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := NewStore(dir, srv.Client())
	require.NoError(t, err)

	_, err = store.Download(context.Background(), srv.URL, "video.mp4", "run-2")
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "run-2", "video.mp4"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStoreRejectsUnsafeNames(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	for _, tc := range []struct{ id, name string }{
		{"..", "video.mp4"},
		{"run", "../escape.mp4"},
		{"a/b", "video.mp4"},
		{"/abs", "video.mp4"},
	} {
		_, err := store.Download(context.Background(), "https://example.com/x.mp4", tc.name, tc.id)
		assert.True(t, errors.Is(err, security.ErrUnsafePath), "%s/%s: %v", tc.id, tc.name, err)
	}

	_, err = store.Download(context.Background(), "", "video.mp4", "run")
	assert.Error(t, err)
}

func TestStoreWriteJSONListRemove(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	rel, err := store.WriteJSON("run-b", "request.json", map[string]any{"tempo": 128})
	require.NoError(t, err)
	assert.Equal(t, "/results/run-b/request.json", rel)
	_, err = store.WriteJSON("run-a", "run.json", map[string]any{"status": "complete"})
	require.NoError(t, err)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, ids)

	require.NoError(t, store.Remove("run-b"))
	ids, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a"}, ids)

	assert.Error(t, store.Remove("../run-a"))
}

func TestWriteAudit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	store, err := NewStore(t.TempDir(), srv.Client())
	require.NoError(t, err)

	now := time.Date(2024, 11, 6, 13, 45, 12, 0, time.UTC)
	id, err := store.WriteAudit(context.Background(), AuditLog{
		AudioFileName:    "track.mp3",
		ScenePrompt:      "describe the chorus",
		SceneDescription: "neon city at dusk",
		ImagePrompt:      "neon city",
		ImageURL:         srv.URL + "/scene.png",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-11-06T13-45-12-000Z_track.mp3", id)

	for _, name := range []string{AnalysisFile, SceneFile, ImageFile, ImageCopy} {
		_, err := os.Stat(filepath.Join(store.Dir(), id, name))
		assert.NoError(t, err, name)
	}

	scene, err := os.ReadFile(filepath.Join(store.Dir(), id, SceneFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"describe the chorus","description":"neon city at dusk"}`, string(scene))
}
