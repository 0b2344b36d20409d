// Package httpapi exposes the rolling window and derived figures to display
// clients over HTTP and websocket.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"smart-meter-monitor/internal/config"
	"smart-meter-monitor/internal/observability"
	"smart-meter-monitor/internal/power"
	"smart-meter-monitor/internal/window"
)

// Deps are the read-side collaborators served by the API. Window is required.
type Deps struct {
	Window     *window.Rolling[power.Metrics]
	Energy     *power.EnergyMeter
	Hub        *Hub
	Collectors *observability.Metrics
	LastSeen   func() time.Time
}

// Server wraps the HTTP listener.
type Server struct {
	cfg      config.HTTPConfig
	deps     Deps
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	handler  http.Handler
}

// NewServer builds the router and middleware chain.
func NewServer(cfg config.HTTPConfig, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", deps.Collectors.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/metrics", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/metrics/latest", s.handleLatest).Methods(http.MethodGet)
	api.HandleFunc("/metrics/stream", s.handleStream).Methods(http.MethodGet)
	api.HandleFunc("/energy", s.handleEnergy).Methods(http.MethodGet)
	api.HandleFunc("/chart.png", s.handleChart).Methods(http.MethodGet)

	var h http.Handler = router
	h = handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	h = handlers.CombinedLoggingHandler(accessLog{s.logger}, h)
	s.handler = h
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens until ctx is cancelled, then shuts down within the grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("http api stopped")
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}

type accessLog struct {
	logger zerolog.Logger
}

func (l accessLog) Write(p []byte) (int, error) {
	l.logger.Debug().Msg(string(trimNewline(p)))
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return p[:n-1]
	}
	return p
}
