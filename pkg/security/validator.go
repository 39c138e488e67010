package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxImageSize is the largest source image accepted (16 MiB).
const DefaultMaxImageSize int64 = 16 * 1024 * 1024

var (
	// ErrNotImage is returned when the fetched content is not an image.
	ErrNotImage = errors.New("security: content is not an image")
	// ErrImageTooLarge is returned when the image exceeds the size limit.
	ErrImageTooLarge = errors.New("security: image exceeds size limit")
	// ErrUnsafePath is returned for absolute or escaping paths.
	ErrUnsafePath = errors.New("security: unsafe path")
)

// ImageInfo describes a fetched source image.
type ImageInfo struct {
	ContentType string
	Size        int64
}

// Validator checks source images and storage paths.
type Validator struct {
	maxImageSize int64
	proxyURL     string
	httpClient   *http.Client
}

// NewValidator creates a validator that fetches images through proxyURL.
// An empty proxyURL fetches images directly.
func NewValidator(maxImageSize int64, proxyURL string, httpClient *http.Client) *Validator {
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	log.Info().
		Int64("max_image_size_mb", maxImageSize/1024/1024).
		Str("proxy_url", proxyURL).
		Msg("security_validator_init")

	return &Validator{
		maxImageSize: maxImageSize,
		proxyURL:     strings.TrimSpace(proxyURL),
		httpClient:   httpClient,
	}
}

// MaxImageSize returns the configured limit in bytes.
func (v *Validator) MaxImageSize() int64 {
	return v.maxImageSize
}

// ValidateImage fetches the image through the proxy and checks its content
// type and size. The body is only read when no Content-Length is sent.
func (v *Validator) ValidateImage(ctx context.Context, imageURI string) (*ImageInfo, error) {
	target, err := v.fetchURL(imageURI)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("security: build image request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("image_uri", imageURI).Msg("security_image_fetch_failed")
		return nil, fmt.Errorf("security: fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Str("image_uri", imageURI).Msg("security_image_fetch_failed")
		return nil, fmt.Errorf("security: fetch image: status %d", resp.StatusCode)
	}

	info := &ImageInfo{ContentType: resp.Header.Get("Content-Type"), Size: resp.ContentLength}
	if err := v.ValidateContentType(info.ContentType); err != nil {
		return nil, err
	}
	if info.Size < 0 {
		n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, v.maxImageSize+1))
		if err != nil {
			return nil, fmt.Errorf("security: read image: %w", err)
		}
		info.Size = n
	}
	if err := v.ValidateFileSize(info.Size); err != nil {
		return nil, err
	}

	log.Info().
		Str("image_uri", imageURI).
		Str("content_type", info.ContentType).
		Int64("size_kb", info.Size/1024).
		Msg("security_image_validated")
	return info, nil
}

// ValidateContentType requires an image/* MIME type.
func (v *Validator) ValidateContentType(contentType string) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		log.Error().Str("content_type", contentType).Msg("security_content_type_rejected")
		return fmt.Errorf("%w: content type %q", ErrNotImage, contentType)
	}
	return nil
}

// ValidateFileSize checks if a file exceeds max image size
func (v *Validator) ValidateFileSize(size int64) error {
	if size > v.maxImageSize {
		log.Error().
			Int64("file_size_mb", size/1024/1024).
			Int64("max_image_size_mb", v.maxImageSize/1024/1024).
			Msg("security_file_size_exceeded")
		return fmt.Errorf("%w: %d bytes exceeds max %d", ErrImageTooLarge, size, v.maxImageSize)
	}
	return nil
}

func (v *Validator) fetchURL(imageURI string) (string, error) {
	imageURI = strings.TrimSpace(imageURI)
	parsed, err := url.Parse(imageURI)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("security: invalid image url %q", imageURI)
	}
	if v.proxyURL == "" {
		return parsed.String(), nil
	}
	sep := "?"
	if strings.Contains(v.proxyURL, "?") {
		sep = "&"
	}
	return v.proxyURL + sep + "url=" + url.QueryEscape(imageURI), nil
}

// ValidatePath checks for path traversal. It rejects absolute paths and
// paths that climb out of their root once cleaned.
func ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		log.Error().Str("path", p).Str("reason", "absolute_path").Msg("security_path_validation_failed")
		return fmt.Errorf("%w: absolute path not allowed: %s", ErrUnsafePath, p)
	}

	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		log.Error().Str("path", p).Str("reason", "path_traversal").Msg("security_path_validation_failed")
		return fmt.Errorf("%w: path traversal detected: %s", ErrUnsafePath, p)
	}
	return nil
}
