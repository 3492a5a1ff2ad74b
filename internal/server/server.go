// Package server exposes the matching engine over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/history"
	"github.com/spigell/mission-matcher/internal/importer"
	"github.com/spigell/mission-matcher/internal/matching"
)

const (
	UserHeader = "X-User-ID"

	defaultMaxUploadBytes = 10 << 20
	shutdownTimeout       = 10 * time.Second
)

type Searcher interface {
	Search(ctx context.Context, req matching.Request) (*matching.Response, error)
	Describe() []matching.Status
	Timeout() time.Duration
}

type Importer interface {
	Import(ctx context.Context, userID, sessionID string, r io.Reader, comma rune) (importer.Result, error)
}

type SessionDeleter interface {
	DeleteSession(ctx context.Context, userID, sessionID string) (int, error)
}

type HistoryLister interface {
	List(ctx context.Context, userID string, limit int) ([]history.Entry, error)
}

type Config struct {
	Addr string
	// RateLimit is the sustained number of API requests per second. Zero disables limiting.
	RateLimit      float64
	RateBurst      int
	MaxUploadBytes int64
}

// Deps wires the server. History is optional.
type Deps struct {
	Engine   Searcher
	Importer Importer
	Sessions SessionDeleter
	History  HistoryLister
}

type Server struct {
	deps      Deps
	cfg       Config
	limiter   *RateLimiter
	logger    *zap.Logger
	maxUpload int64
}

func New(deps Deps, cfg Config, logger *zap.Logger) (*Server, error) {
	if deps.Engine == nil || deps.Importer == nil || deps.Sessions == nil {
		return nil, errors.New("engine, importer and session store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{deps: deps, cfg: cfg, logger: logger, maxUpload: cfg.MaxUploadBytes}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUploadBytes
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	return s, nil
}

// Handler returns the routes of the server. Only /api routes are rate limited
// and require the user header.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/search", s.handleSearch)
	api.HandleFunc("POST /api/sessions/import", s.handleImport)
	api.HandleFunc("POST /api/sessions/{session}/import", s.handleImport)
	api.HandleFunc("DELETE /api/sessions/{session}", s.handleDeleteSession)
	api.HandleFunc("GET /api/history", s.handleHistory)

	var apiHandler http.Handler = requireUser(api)
	if s.limiter != nil {
		apiHandler = RateLimitMiddleware(apiHandler, s.limiter)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return logRequests(mux, s.logger)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// searches may run up to the engine timeout
		WriteTimeout: s.deps.Engine.Timeout() + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}
