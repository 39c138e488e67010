package security

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type stubTransport struct {
	lastURL string
	resp    func() *http.Response
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.lastURL = req.URL.String()
	return s.resp(), nil
}

func imageResponse(contentType string, length int64, body string) func() *http.Response {
	return func() *http.Response {
		return &http.Response{
			StatusCode:    http.StatusOK,
			Header:        http.Header{"Content-Type": []string{contentType}},
			ContentLength: length,
			Body:          io.NopCloser(strings.NewReader(body)),
		}
	}
}

func TestValidatePath_PathTraversal(t *testing.T) {
	tests := []struct {
		path      string
		shouldErr bool
	}{
		{"video.mp4", false},
		{"2024-01-01T00-00-00-000Z_track.mp3/video.mp4", false},
		{"../etc/passwd", true},
		{"/etc/passwd", true},
		{"dir/../file.txt", false},
		{"dir/../../etc/passwd", true},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidatePath(tt.path)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for path: %s", tt.path)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for path %s: %v", tt.path, err)
		}
		if err != nil && !errors.Is(err, ErrUnsafePath) {
			t.Errorf("error for %s should wrap ErrUnsafePath: %v", tt.path, err)
		}
	}
}

func TestValidateFileSize(t *testing.T) {
	v := NewValidator(100, "", nil)

	if err := v.ValidateFileSize(50); err != nil {
		t.Errorf("expected no error for size 50, got: %v", err)
	}

	if err := v.ValidateFileSize(150); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("expected ErrImageTooLarge for size 150, got: %v", err)
	}
}

func TestValidateImageUsesProxy(t *testing.T) {
	transport := &stubTransport{resp: imageResponse("image/png", 4, "\x89PNG")}
	v := NewValidator(DefaultMaxImageSize, "http://localhost:8080/api/proxy-image", &http.Client{Transport: transport})

	info, err := v.ValidateImage(context.Background(), "https://cdn.example.com/scene.png?sig=a&b=c")
	if err != nil {
		t.Fatalf("ValidateImage: %v", err)
	}
	if info.ContentType != "image/png" || info.Size != 4 {
		t.Fatalf("info = %+v", info)
	}
	want := "http://localhost:8080/api/proxy-image?url=https%3A%2F%2Fcdn.example.com%2Fscene.png%3Fsig%3Da%26b%3Dc"
	if transport.lastURL != want {
		t.Fatalf("fetched %q, want %q", transport.lastURL, want)
	}
}

func TestValidateImageRejectsText(t *testing.T) {
	transport := &stubTransport{resp: imageResponse("text/plain", 5, "hello")}
	v := NewValidator(DefaultMaxImageSize, "", &http.Client{Transport: transport})

	_, err := v.ValidateImage(context.Background(), "https://cdn.example.com/notes.txt")
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
}

func TestValidateImageRejectsOversized(t *testing.T) {
	transport := &stubTransport{resp: imageResponse("image/jpeg", 20*1024*1024, "")}
	v := NewValidator(DefaultMaxImageSize, "", &http.Client{Transport: transport})

	_, err := v.ValidateImage(context.Background(), "https://cdn.example.com/huge.jpg")
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestValidateImageMeasuresUnknownLength(t *testing.T) {
	transport := &stubTransport{resp: imageResponse("image/jpeg", -1, strings.Repeat("x", 11))}
	v := NewValidator(10, "", &http.Client{Transport: transport})

	_, err := v.ValidateImage(context.Background(), "https://cdn.example.com/chunked.jpg")
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestValidateImageRejectsBadScheme(t *testing.T) {
	v := NewValidator(10, "", nil)
	if _, err := v.ValidateImage(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatal("expected error for file scheme")
	}
}
