// Package httpapi runs the trap listener: one chi router dispatching to
// the discovery, REST and MCP surfaces, with the capture middleware wrapped
// around every handler.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/config"
	"github.com/sundew-sh/sundew/internal/interp"
	"github.com/sundew-sh/sundew/internal/models"
	"github.com/sundew-sh/sundew/internal/observability"
	"github.com/sundew-sh/sundew/internal/persona"
	"github.com/sundew-sh/sundew/internal/session"
	"github.com/sundew-sh/sundew/internal/traps"
)

// Server is the attacker-facing HTTP listener.
type Server struct {
	cfg     *config.Config
	persona *models.Persona
	engine  *persona.Engine
	tracker *session.Tracker
	metrics *observability.MetricsManager
	logger  *zap.SugaredLogger
	router  *chi.Mux
}

// NewServer wires the trap router. metrics may be nil.
func NewServer(
	cfg *config.Config,
	engine *persona.Engine,
	tracker *session.Tracker,
	metrics *observability.MetricsManager,
	logger *zap.SugaredLogger,
) *Server {
	s := &Server{
		cfg:     cfg,
		persona: engine.Persona(),
		engine:  engine,
		tracker: tracker,
		metrics: metrics,
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(time.Duration(s.cfg.Server.TimeoutSeconds) * time.Second))
	s.router.Use(s.captureMiddleware)

	s.router.Get("/health", s.handleHealth)

	if s.cfg.Traps.AIDiscovery {
		traps.NewDiscovery(s.persona, s.logger).Routes(s.router)
	}
	if s.cfg.Traps.RESTAPI {
		traps.NewREST(s.persona, s.logger).Routes(s.router)
	}
	if s.cfg.Traps.MCPServer {
		traps.NewMCP(s.persona, s.logger).Routes(s.router)
	}

	// Everything else goes through the template cache before falling back
	// to a persona-styled 404.
	s.router.NotFound(s.handleUnmatched)
	s.router.MethodNotAllowed(s.handleUnmatched)
}

// handleHealth is the liveness probe. It still flows through the capture
// middleware, so probes hitting it are recorded like any other traffic.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.logger.Debugw("Failed to write health response", "error", err)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleUnmatched serves a cached template when one matches the request,
// otherwise a persona-styled 404. Unknown paths must look like any other
// missing resource on the advertised framework.
func (s *Server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	if t, ok := s.engine.Match(r.Method, r.URL.Path); ok {
		for name, value := range t.Headers {
			w.Header().Set(name, interp.Interpolate(value, nil))
		}
		if t.ContentType != "" {
			w.Header().Set("Content-Type", t.ContentType)
		}
		status := t.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if _, err := w.Write([]byte(interp.Interpolate(t.BodyTemplate, nil))); err != nil {
			s.logger.Debugw("Failed to write template response", "path", r.URL.Path, "error", err)
		}
		return
	}
	traps.WriteError(w, s.persona, http.StatusNotFound, "Not found", "")
}

// Start runs the listener until ctx is cancelled, then drains gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("Shutdown did not drain cleanly", "error", err)
		}
	}()

	s.logger.Infow("Trap listener started",
		"addr", addr,
		"company", s.persona.CompanyName,
		"industry", s.persona.Industry)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("trap listener failed: %w", err)
	}
	return nil
}
