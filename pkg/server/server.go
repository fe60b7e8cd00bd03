package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/gateway"
	"warden-hq/warden/pkg/proxy/middleware"
)

// defaultReleaseIdle is the model idle horizon applied when a release
// request names none.
const defaultReleaseIdle = 10 * time.Minute

// Server is the HTTP front of the gateway.
type Server struct {
	config  config.ServerConfig
	gateway *gateway.Gateway
	logger  *slog.Logger

	httpServer *http.Server

	mu           sync.Mutex
	running      bool
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New builds a server over an assembled gateway.
func New(cfg config.ServerConfig, gw *gateway.Gateway) *Server {
	s := &Server{
		config:     cfg,
		gateway:    gw,
		logger:     slog.Default().With("component", "server"),
		shutdownCh: make(chan struct{}),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		// No WriteTimeout: moderated streams may run for minutes and are
		// bounded by the client connection, not by the server clock.
	}
	return s
}

// Start runs the server until the context is cancelled, a termination
// signal arrives, or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server: already running")
	}
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		s.logger.Info("signal received, shutting down", "signal", sig.String())
	case err := <-errCh:
		s.logger.Error("server failed", "error", err)
		s.Shutdown()
		return err
	case <-s.shutdownCh:
	}

	return s.Shutdown()
}

// Shutdown stops accepting connections, waits for in-flight streams up to
// the configured timeout, then stops the gateway. It is idempotent.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if serr := s.httpServer.Shutdown(ctx); serr != nil {
			s.logger.Warn("http shutdown incomplete, closing", "error", serr)
			s.httpServer.Close()
			err = serr
		}
		if gerr := s.gateway.Shutdown(ctx); gerr != nil && err == nil {
			err = gerr
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.logger.Info("server stopped")
	})
	return err
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Handler exposes the full route tree, for tests and embedders.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/stream", s.gateway.StreamHandler())
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.gateway.MetricsHandler())
	mux.HandleFunc("POST /internal/release", s.handleRelease)

	return middleware.Recovery(middleware.RequestID(middleware.AccessLog(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counters := s.gateway.Counters()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"resident_models":    counters.ResidentModels,
		"cache_evictions":    counters.CacheEvictions,
		"record_drops":       counters.RecordDrops,
		"training_successes": counters.TrainingSuccesses,
		"training_failures":  counters.TrainingFailures,
	})
}

// handleRelease is the memory-guard hook. An external watchdog posts here
// when the process should shed reclaimable state; the gateway never does
// this on its own.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	maxIdle := defaultReleaseIdle
	if raw := r.URL.Query().Get("max_idle"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": fmt.Sprintf("invalid max_idle %q", raw),
			})
			return
		}
		maxIdle = d
	}

	report, err := s.gateway.ReleaseUnusedResources(r.Context(), maxIdle)
	if err != nil {
		s.logger.Error("resource release failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "release failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
