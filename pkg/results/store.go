// Package results persists generated artifacts and audit documents under a
// per-analysis directory on the local filesystem.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Fato07/runway-music-video-generator/pkg/security"
)

// URLPrefix is the relative path prefix returned for stored files.
const URLPrefix = "/results"

// Store writes files under <dir>/<analysisID>/.
type Store struct {
	dir        string
	httpClient *http.Client
}

// NewStore initializes a Store rooted at dir.
func NewStore(dir string, httpClient *http.Client) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("results: directory is required")
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("results: ensure directory: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Store{dir: dir, httpClient: httpClient}, nil
}

// Dir returns the absolute root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Download fetches uri and writes it to <analysisID>/<filename>, returning
// the relative path /results/<analysisID>/<filename>. Partial files are
// removed on failure.
func (s *Store) Download(ctx context.Context, uri, filename, analysisID string) (string, error) {
	if strings.TrimSpace(uri) == "" || strings.TrimSpace(filename) == "" || strings.TrimSpace(analysisID) == "" {
		return "", errors.New("results: missing required parameters for file download")
	}
	full, rel, err := s.resolve(analysisID, filename)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("results: build download request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("results: fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("results: fetch file: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("results: ensure directory: %w", err)
	}
	tmp := full + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("results: create file: %w", err)
	}
	size, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp)
		if copyErr != nil {
			return "", fmt.Errorf("results: write file: %w", copyErr)
		}
		return "", fmt.Errorf("results: close file: %w", closeErr)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("results: finalize file: %w", err)
	}

	log.Info().
		Str("analysis_id", analysisID).
		Str("file", rel).
		Int64("size_kb", size/1024).
		Msg("results_file_downloaded")
	return rel, nil
}

// WriteJSON stores v as indented JSON at <analysisID>/<name>.
func (s *Store) WriteJSON(analysisID, name string, v any) (string, error) {
	full, rel, err := s.resolve(analysisID, name)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("results: encode %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("results: ensure directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("results: write %s: %w", name, err)
	}
	return rel, nil
}

// AbsPath maps a relative /results/... path back onto the filesystem.
func (s *Store) AbsPath(rel string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rel, URLPrefix), "/")
	if err := security.ValidatePath(trimmed); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(trimmed)), nil
}

// Remove deletes every file stored for analysisID.
func (s *Store) Remove(analysisID string) error {
	if err := security.ValidatePath(analysisID); err != nil {
		return err
	}
	if strings.Contains(analysisID, "/") {
		return fmt.Errorf("%w: nested analysis id %q", security.ErrUnsafePath, analysisID)
	}
	if err := os.RemoveAll(filepath.Join(s.dir, analysisID)); err != nil {
		return fmt.Errorf("results: remove %s: %w", analysisID, err)
	}
	return nil
}

// List returns the analysis IDs that have a directory in the store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("results: list: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) resolve(analysisID, filename string) (string, string, error) {
	if strings.ContainsAny(analysisID, `/\`) {
		return "", "", fmt.Errorf("%w: analysis id %q", security.ErrUnsafePath, analysisID)
	}
	if strings.ContainsAny(filename, `/\`) {
		return "", "", fmt.Errorf("%w: filename %q", security.ErrUnsafePath, filename)
	}
	key := path.Join(analysisID, filename)
	if err := security.ValidatePath(analysisID); err != nil {
		return "", "", err
	}
	if err := security.ValidatePath(key); err != nil {
		return "", "", err
	}
	if analysisID == "." || analysisID == ".." || filename == "." || filename == ".." {
		return "", "", fmt.Errorf("%w: %s", security.ErrUnsafePath, key)
	}
	return filepath.Join(s.dir, analysisID, filename), URLPrefix + "/" + key, nil
}
