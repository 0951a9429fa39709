// Package grpchealth exposes the simulated VM health over the standard
// grpc.health.v1 protocol, so gRPC-aware load balancers and probes observe
// the same flag as /healthz.
package grpchealth

import (
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/logging"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/status"
)

// Config contains gRPC health server configuration
type Config struct {
	ListenAddr  string
	ServiceName string
	Logger      *logging.Logger
}

// Server serves grpc.health.v1 backed by a status.Store
type Server struct {
	addr        string
	serviceName string
	grpcServer  *grpc.Server
	health      *health.Server
	logger      *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	started  bool
}

// NewServer creates the server and subscribes it to store changes
func NewServer(config Config, store *status.Store) *Server {
	if config.Logger == nil {
		config.Logger = logging.L()
	}

	s := &Server{
		addr:        config.ListenAddr,
		serviceName: config.ServiceName,
		grpcServer:  grpc.NewServer(),
		health:      health.NewServer(),
		logger:      config.Logger.With(logging.String("component", "grpc")),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	store.OnChange(s.sync)

	return s
}

// sync mirrors the health flag into the serving status
func (s *Server) sync(healthy bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	if s.serviceName != "" {
		s.health.SetServingStatus(s.serviceName, st)
	}
}

// Start listens and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("grpc health server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.started = true

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			s.logger.Error("grpc health server error", logging.Err(err))
		}
	}()

	s.logger.Info("grpc health server started", logging.String("listen", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop marks every service NOT_SERVING and drains connections
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.started = false
}
