// Package api exposes the tracker over HTTP: the message endpoint used by
// front ends plus read and export routes for stored sessions.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/clock"
	"github.com/goodtune/rollcall/internal/export"
	"github.com/goodtune/rollcall/internal/storage"
	"github.com/goodtune/rollcall/internal/tracker"
)

// Controller is the part of the tracker the API drives.
type Controller interface {
	Status() tracker.Status
	Export(now time.Time) (export.Document, bool)
	SetConsent(ctx context.Context, granted, remember bool) error
	ResetConsent(ctx context.Context) error
	EnableTracking(ctx context.Context) error
	StopTracking()
}

// Sessions reads and clears stored sessions.
type Sessions interface {
	List(ctx context.Context) ([]storage.Session, error)
	Load(ctx context.Context, id string) (*storage.Session, error)
	Clear(ctx context.Context) (int, error)
}

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
	// Location is the time zone of CSV exports; nil means local time.
	Location *time.Location
	Clock    clock.Clock
}

// Server is the API HTTP server.
type Server struct {
	config   Config
	tracker  Controller
	sessions Sessions
	validate *validator.Validate
	router   *mux.Router
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config, t Controller, sessions Sessions, logger zerolog.Logger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	s := &Server{
		config:   cfg,
		tracker:  t,
		sessions: sessions,
		validate: validator.New(),
		router:   mux.NewRouter(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/message", s.handleMessage).Methods("POST")

	s.router.HandleFunc("/api/sessions", s.handleListSessions).Methods("GET")
	s.router.HandleFunc("/api/sessions", s.handleClearSessions).Methods("DELETE")
	s.router.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}/export.json", s.handleExportJSON).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}/export.csv", s.handleExportCSV).Methods("GET")
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start serves the API in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"isTracking": st.IsTracking,
	})
}
