// Package api exposes the clock service over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"timeclock/internal/config"
	"timeclock/internal/models"
	"timeclock/internal/service"
)

// ClockService is the subset of the orchestrator served over HTTP.
type ClockService interface {
	Record(ctx context.Context, userID string, kind models.EventKind, at time.Time) (*service.ActionResult, error)
	GetCurrentStatus(ctx context.Context, userID string, now time.Time) (*service.Status, error)
	GetTodaySession(ctx context.Context, userID string, now time.Time) (*models.WorkSession, error)
	GetRecentActivities(ctx context.Context, userID string, limit int) ([]models.TimeEvent, error)
	GetUserSessions(ctx context.Context, userID string, q service.SessionQuery) (*service.SessionPage, error)
}

type HTTPServer struct {
	service ClockService
	apiKey  string
	limiter *userLimiter
	logger  *zerolog.Logger
	now     func() time.Time
	server  *http.Server
}

func NewHTTPServer(cfg config.HTTPConfig, rl config.RateLimitConfig, svc ClockService, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	s := &HTTPServer{
		service: svc,
		apiKey:  cfg.APIKey,
		logger:  &l,
		now:     time.Now,
	}
	if rl.Enabled {
		s.limiter = newUserLimiter(rl.RequestsPerSecond, rl.Burst)
	}

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			r.Post("/clock-in", s.handleAction(models.KindClockIn))
			r.Post("/clock-out", s.handleAction(models.KindClockOut))
			r.Post("/lunch/start", s.handleAction(models.KindStartLunch))
			r.Post("/lunch/end", s.handleAction(models.KindResumeShift))

			r.Get("/status", s.handleStatus)
			r.Get("/sessions/today", s.handleTodaySession)
			r.Get("/sessions", s.handleSessions)
			r.Get("/activities", s.handleActivities)
		})
	})

	return r
}

// Handler returns the HTTP handler with all routes.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
