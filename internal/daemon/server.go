package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/deltadent/ServicePro-sub000/internal/bus"
	"github.com/deltadent/ServicePro-sub000/internal/control"
	"github.com/deltadent/ServicePro-sub000/internal/profile"
	"github.com/deltadent/ServicePro-sub000/internal/status"
)

// Server manages the gRPC server lifecycle for a profile daemon.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	bus        *bus.Bus
	logger     *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
	watchers sync.WaitGroup
}

// NewServer creates a gRPC server bound to the profile's Unix domain socket.
func NewServer(
	p Params,
	logger *zap.Logger,
	b *bus.Bus,
	monitor *status.Monitor,
	controlSvc *control.Service,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.Profile)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	control.Register(srv, controlSvc)

	hs := health.NewServer()
	hs.SetServingStatus(control.HealthService, servingStatus(monitor.Current()))
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		bus:        b,
		logger:     logger,
		done:       make(chan struct{}),
	}
	s.watchConnectivity()
	return s, nil
}

func servingStatus(s status.State) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case status.Online:
		return healthpb.HealthCheckResponse_SERVING
	case status.Offline:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_UNKNOWN
}

// watchConnectivity mirrors connectivity changes into the health service.
func (s *Server) watchConnectivity() {
	ch, unsub := s.bus.Subscribe(bus.NamespaceConnectivity, 16)
	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if change, ok := evt.Payload.(status.Change); ok {
					s.health.SetServingStatus(control.HealthService, servingStatus(change.To))
				}
			case <-s.done:
				return
			}
		}
	}()
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. Open
// WatchSync streams are cut when ctx is done.
func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.logger.Info("gRPC server stopping")
		close(s.done)
		s.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.logger.Warn("graceful stop timed out, closing streams")
			s.grpcServer.Stop()
			<-stopped
		}
		s.watchers.Wait()
		_ = os.Remove(s.socketPath)
	})
}
