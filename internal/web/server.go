// Package web provides the HTTP server of the Spotify OAuth proxy.
package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/moodmusic/internal/metrics"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr        string
	BasePath    string // route prefix, without trailing slash
	PublicURL   string // optional scheme+host used for the OAuth redirect URI
	CSRFToken   string
	TemplatesFS fs.FS
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Server is the HTTP server for the proxy.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      ServerConfig
}

// NewServer creates a new proxy server.
func NewServer(cfg ServerConfig, accounts Accounts, newPlayer PlayerFactory) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	templates, err := NewTemplates(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	router := chi.NewRouter()

	s := &Server{
		router:   router,
		handlers: NewHandlers(accounts, newPlayer, templates, cfg),
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(SecurityHeaders)
}

// setupRoutes configures routes under the base path.
func (s *Server) setupRoutes() {
	h := s.handlers

	routes := func(r chi.Router) {
		r.Use(CSRF(s.cfg.CSRFToken))

		r.Get("/test", h.Health)

		r.Get("/config", h.GetConfig)
		r.Post("/config", h.SaveConfig)
		r.Delete("/config", h.ClearConfig)

		r.Get("/auth/status", h.AuthStatus)
		r.Get("/auth/login", h.Login)
		r.Get("/auth/callback", h.Callback)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/playback/state", h.PlaybackState)
			r.Post("/play", h.Play)
			r.Post("/play/liked", h.PlayLiked)
		})
	}

	if s.cfg.BasePath == "" {
		s.router.Group(routes)
	} else {
		s.router.Route(s.cfg.BasePath, routes)
	}

	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting proxy", "url", "http://"+s.server.Addr+s.cfg.BasePath)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and shuts it down gracefully when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down proxy")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("proxy stopped")
	return nil
}
