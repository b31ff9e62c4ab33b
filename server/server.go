// Package server exposes the latest top-N snapshot over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
	"github.com/teranos/topclients/pulse/async"
	"github.com/teranos/topclients/results"
	"github.com/teranos/topclients/topn"
)

// ServerState is the lifecycle phase of a Server.
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config configures a Server.
type Config struct {
	Port      int
	ResultKey string
	// MaxRequestsPerSecond limits the query endpoint; 0 disables limiting.
	MaxRequestsPerSecond float64
}

// Server serves the query endpoint.
type Server struct {
	reader    results.Reader
	resultKey string
	queue     *async.Queue // optional, reported by /health
	port      int
	logger    *zap.SugaredLogger

	limiterMu sync.RWMutex
	limiter   *rate.Limiter

	httpServer *http.Server
	startedAt  time.Time
	state      atomic.Int32
}

// New creates a server reading snapshots from reader.
func New(reader results.Reader, cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.Logger
	}
	if cfg.ResultKey == "" {
		cfg.ResultKey = topn.ResultKey
	}
	s := &Server{
		reader:    reader,
		resultKey: cfg.ResultKey,
		port:      cfg.Port,
		logger:    log.Named("server"),
		limiter:   newLimiter(cfg.MaxRequestsPerSecond),
		startedAt: time.Now(),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// WithQueue attaches the job queue so /health can report its depth.
func (s *Server) WithQueue(q *async.Queue) *Server {
	s.queue = q
	return s
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := max(int(rps), 1)
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// SetRateLimit replaces the query limiter, e.g. after a config reload.
func (s *Server) SetRateLimit(rps float64) {
	s.limiterMu.Lock()
	s.limiter = newLimiter(rps)
	s.limiterMu.Unlock()
	s.logger.Infow("Query rate limit updated", "max_requests_per_second", rps)
}

func (s *Server) allow() bool {
	s.limiterMu.RLock()
	defer s.limiterMu.RUnlock()
	return s.limiter.Allow()
}

// Start listens on the configured port and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", s.port)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.setState(ServerStateRunning)
	s.logger.Infow("Server ready",
		logger.FieldAddress, ln.Addr().String(),
		logger.FieldResultKey, s.resultKey)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.setState(ServerStateStopped)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() error {
	s.setState(ServerStateDraining)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.setState(ServerStateStopped)
	if err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}

func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Debugw("Server state changed", "new_state", newState.String())
}

func (st ServerState) String() string {
	switch st {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
