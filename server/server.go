// Package server serves the mock API: provider fixtures, slideshow
// endpoints backed by standalone schema files, and video and story
// endpoints backed by OpenAPI components.
//
// POST bodies are validated against their request schema. Responses come
// from a canned example when one exists, otherwise from a stub generated
// from the response schema.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/potterlabs/mockapi/config"
	"github.com/potterlabs/mockapi/fixtures"
	"github.com/potterlabs/mockapi/muxhandlers"
	"github.com/potterlabs/mockapi/registry"
	"github.com/potterlabs/mockapi/stubgen"
	"golang.org/x/net/netutil"
)

// Server is the mock API server.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	gen    *stubgen.Generator

	registry          *registry.Registry
	providers         *fixtures.Store
	slideshowExamples *fixtures.Examples
	storyExamples     *fixtures.Examples

	router  *mux.Router
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGenerator sets the stub generator, e.g. one with a fixed clock.
func WithGenerator(gen *stubgen.Generator) Option {
	return func(s *Server) {
		if gen != nil {
			s.gen = gen
		}
	}
}

// New builds a Server from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		gen:    stubgen.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registry = registry.New(registry.Config{
		SchemasDir:  cfg.SlideshowSchemasDir(),
		OpenAPIFile: cfg.StoryOpenAPIPath(),
	}, s.logger)
	s.providers = fixtures.NewStore(cfg.ProvidersExamplesDir())
	s.slideshowExamples = fixtures.NewExamples(cfg.SlideshowExamplesDir())
	s.storyExamples = fixtures.NewExamples(cfg.StoryExamplesDir())

	s.router = s.routes()

	handler, err := s.middleware(s.router)
	if err != nil {
		return nil, err
	}
	s.handler = handler

	return s, nil
}

// middleware wraps the router. The chain wraps the router from outside so
// it also runs for unmatched routes and CORS preflights.
func (s *Server) middleware(router *mux.Router) (http.Handler, error) {
	mws := []mux.MiddlewareFunc{
		muxhandlers.RecoveryMiddleware(muxhandlers.RecoveryConfig{Logger: s.logger}),
		muxhandlers.RequestIDMiddleware(muxhandlers.RequestIDConfig{TrustIncoming: true}),
		muxhandlers.AccessLogMiddleware(muxhandlers.AccessLogConfig{Logger: s.logger}),
		muxhandlers.IdempotencyWarningMiddleware(muxhandlers.IdempotencyWarningConfig{Logger: s.logger}),
	}

	limit, err := muxhandlers.RequestSizeLimitMiddleware(muxhandlers.RequestSizeLimitConfig{
		MaxBytes: s.cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}
	mws = append(mws, limit)

	if s.cfg.Server.RequireJSON {
		ct, err := muxhandlers.ContentTypeCheckMiddleware(muxhandlers.ContentTypeCheckConfig{
			AllowedTypes: []string{"application/json"},
			Methods:      []string{http.MethodPost},
		})
		if err != nil {
			return nil, err
		}
		mws = append(mws, ct)
	}

	if s.cfg.CORS.Enabled {
		cors, err := muxhandlers.CORSMiddleware(router, muxhandlers.CORSConfig{
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
			ExposeHeaders:  []string{muxhandlers.RequestIDHeader},
		})
		if err != nil {
			return nil, err
		}
		mws = append(mws, cors)
	}

	return muxhandlers.Chain(router, mws...), nil
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry returns the schema registry backing the endpoints.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured shutdown timeout. ln is closed on
// return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if limit := s.cfg.Server.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}

	if s.cfg.Watch.Enabled {
		if _, err := s.registry.Watch(ctx); err != nil {
			s.logger.Warn("schema watching disabled", "error", err)
		}
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx := context.Background()
	if timeout := s.cfg.Server.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, timeout)
		defer cancel()
	}

	s.logger.Info("server shutting down")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	return nil
}
