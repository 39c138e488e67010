// Package server exposes the generation workflow and the results store over
// HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Fato07/runway-music-video-generator/pkg/db"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
	"github.com/Fato07/runway-music-video-generator/pkg/orchestrator"
	"github.com/Fato07/runway-music-video-generator/pkg/results"
)

// Generator runs one generation request to completion.
type Generator interface {
	Generate(ctx context.Context, req orchestrator.GenerationRequest, obs orchestrator.Observer) (*db.Generation, error)
}

// Deps are the collaborators of the router.
type Deps struct {
	Store     *results.Store
	Generator Generator
	// HTTPClient fetches proxied images. Defaults to a 30s client.
	HTTPClient *http.Client
	// RateLimitPerMinute caps /api requests per client IP; 0 disables it.
	RateLimitPerMinute int
	Now                func() time.Time
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	return newHandlers(d).routes(d.RateLimitPerMinute)
}

func newHandlers(d Deps) *handlers {
	h := &handlers{
		store:  d.Store,
		gen:    d.Generator,
		client: d.HTTPClient,
		live:   newLiveRuns(),
		now:    d.Now,
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: 30 * time.Second}
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (h *handlers) routes(rateLimitPerMinute int) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	r.Use(AccessLog)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(rateLimitPerMinute, time.Minute))
		r.Get("/proxy-image", h.proxyImage)
		r.Post("/download", h.download)
		r.Post("/log-results", h.logResults)
		r.Post("/generate", h.generate)
		r.Get("/generate/{analysisID}/events", h.watch)
	})

	files := http.StripPrefix(results.URLPrefix+"/", http.FileServer(http.Dir(h.store.Dir())))
	r.Handle(results.URLPrefix+"/*", files)

	return r
}

// HTTPServer wraps http.Server with start and graceful shutdown helpers.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a server for handler on addr. There is no write
// timeout because generation streams stay open for minutes.
func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
}

// Start serves in the current goroutine until Shutdown is called.
func (s *HTTPServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}
