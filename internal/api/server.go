package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/credit"
	"github.com/JakeFAU/buzzcrawl/internal/metrics"
	"github.com/JakeFAU/buzzcrawl/internal/source"
)

const defaultRequestTimeout = 45 * time.Second

// Crawler runs crawl requests.
type Crawler interface {
	Run(ctx context.Context, req crawler.CrawlRequest) (crawler.CrawlResult, error)
}

// SourceDirectory describes which sources exist and which can be crawled.
type SourceDirectory interface {
	Catalog() *source.Catalog
	Supported() []string
}

// Credits exposes balance queries, quotes and top-ups.
type Credits interface {
	Quote(textBytes int, sources []string) int
	Balance(ctx context.Context, userID string) (credit.Account, error)
	Add(ctx context.Context, userID string, amount int) (int, error)
}

// Limits exposes rate window inspection and overrides.
type Limits interface {
	Stats(userID string) crawler.RateUsage
	SetUserLimit(userID string, limit int) error
}

// ReadyCheck reports whether a downstream dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Options configures the Server. IDs defaults to random UUIDs when nil.
type Options struct {
	APIKey         string
	AdminKey       string
	RequestTimeout time.Duration
	IDs            crawler.IDGenerator
	ReadyChecks    map[string]ReadyCheck
}

// Server wires HTTP handlers to the orchestrator and its services.
type Server struct {
	router  chi.Router
	crawler Crawler
	sources SourceDirectory
	credits Credits
	limits  Limits
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	c Crawler,
	sources SourceDirectory,
	credits Credits,
	limits Limits,
	opts Options,
	logger *zap.Logger,
) (*Server, error) {
	if c == nil || sources == nil || credits == nil || limits == nil {
		return nil, errors.New("api: crawler, sources, credits and limits are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	metrics.Init()
	s := &Server{
		crawler: c,
		sources: sources,
		credits: credits,
		limits:  limits,
		opts:    opts,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(opts.IDs))
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey, s.logger))
		}
		r.Post("/crawl", s.crawl)
		r.Get("/sources", s.listSources)
		r.Route("/credits", func(r chi.Router) {
			r.Post("/quote", s.quote)
			r.Get("/{user_id}", s.getCredits)
			r.With(adminMiddleware(opts.AdminKey, s.logger)).Post("/{user_id}/topup", s.topUp)
		})
		r.Route("/ratelimit/{user_id}", func(r chi.Router) {
			r.Get("/", s.getRateLimit)
			r.With(adminMiddleware(opts.AdminKey, s.logger)).Put("/", s.setRateLimit)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for name, check := range s.opts.ReadyChecks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failed", failed))
		writeJSON(s.logger, w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}
