// Package service runs the HTTP endpoints that live for the duration of a
// harness invocation: /healthz and the Prometheus /metrics endpoint.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
)

const shutdownTimeout = 5 * time.Second

// Service serves health and metrics on one listener
type Service struct {
	log      log.Logger
	gatherer prometheus.Gatherer
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a service exposing the given gatherer
func New(logger log.Logger, gatherer prometheus.Gatherer) *Service {
	return &Service{
		log:      logger.New("component", "service"),
		gatherer: gatherer,
	}
}

// Handler returns the HTTP handler with every route registered
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(mux)
}

// Start listens on host:port and serves in the background
func (s *Service) Start(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.Handler()}
	s.done = make(chan struct{})

	s.log.Info("Starting metrics server", "addr", ln.Addr().String())
	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Error serving metrics", "err", err)
			metrics.RecordErrorDetails("metrics_server", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or nil before Start
func (s *Service) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down
func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	<-s.done
	s.log.Info("Metrics server stopped")
	return err
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
