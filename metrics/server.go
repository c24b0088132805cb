package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the Prometheus scrape endpoint on its own listener, kept
// separate from the API server so scrapes survive API restarts.
type Server struct {
	server  *http.Server
	errChan chan error
}

// NewServer creates a metrics server listening on addr, e.g. ":9090".
// The only route is /metrics.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server:  &http.Server{Addr: addr, Handler: mux},
		errChan: make(chan error, 1),
	}
}

// Start begins serving in a goroutine and returns immediately. A failed
// listen surfaces through Err.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.errChan <- err
		}
	}()
}

// Err reports a serve failure without blocking; nil means none so far.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
