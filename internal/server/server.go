// Package server exposes the question answering workflow over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Divas-Gupta30/kgqa/internal/logger"
	"github.com/Divas-Gupta30/kgqa/internal/qa"
)

// Asker answers one question. *qa.Orchestrator satisfies it.
type Asker interface {
	Run(ctx context.Context, question string) qa.Result
}

// Observer receives per-request measurements and serves them.
type Observer interface {
	ObserveRequest(method, endpoint string, status int, d time.Duration)
	Handler() http.Handler
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

const (
	RequestIDHeader = "X-Request-ID"

	defaultRequestTimeout = 2 * time.Minute
	healthCheckTimeout    = 2 * time.Second
	maxBodyBytes          = 1 << 20
)

type Server struct {
	asker          Asker
	observer       Observer
	checks         map[string]HealthCheck
	requestTimeout time.Duration
	router         *mux.Router
}

type Option func(*Server)

func WithObserver(o Observer) Option {
	return func(s *Server) { s.observer = o }
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

func New(asker Asker, opts ...Option) *Server {
	s := &Server{
		asker:          asker,
		checks:         make(map[string]HealthCheck),
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(s.requestContext, s.instrument)
	r.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/mcp", s.handleMCP).Methods(http.MethodPost)
	r.HandleFunc("/tools/list", s.handleToolsList).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.observer != nil {
		r.Handle("/metrics", s.observer.Handler()).Methods(http.MethodGet)
	}
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	log := logger.FromContext(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("KGQA server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string `json:"question"`
	qa.Result
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Question: req.Question, Result: s.ask(r.Context(), req.Question)})
}

func (s *Server) ask(ctx context.Context, question string) qa.Result {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.asker.Run(ctx, question)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			logger.FromContext(ctx).Warn("Health check failed", "dependency", name, "error", err)
			deps[name] = "disconnected"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "connected"
	}
	health := map[string]any{"status": "healthy", "dependencies": deps}
	if status != http.StatusOK {
		health["status"] = "degraded"
	}
	writeJSON(w, status, health)
}

// requestContext tags the request with an ID and a logger carrying it.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		log := logger.FromContext(r.Context()).With("request_id", id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithLogger(r.Context(), log)))
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		if s.observer != nil {
			s.observer.ObserveRequest(r.Method, endpoint, rec.status, time.Since(start))
		}
		logger.FromContext(r.Context()).Debug("Request handled",
			"method", r.Method, "endpoint", endpoint, "status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
