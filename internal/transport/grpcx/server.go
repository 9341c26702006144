// Package grpcx provides the gRPC server bootstrap every transport-facing
// component (Gateway, and any ClientLogic/Projector/Saga/PM implementation
// that chooses to run out-of-process) shares: TCP or Unix Domain Socket
// listening, health checking, optional reflection, and graceful shutdown on
// SIGINT/SIGTERM.
//
// Grounded on clientsdk's server.go (TransportConfig/CreateServer/RunServer)
// and generalized to read transport selection from internal/config instead
// of raw os.Getenv calls.
package grpcx

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/benjaminabbitt/angzarr-core/internal/config"
	"github.com/benjaminabbitt/angzarr-core/internal/logging"
)

// Registrar registers one or more services against a freshly built
// *grpc.Server.
type Registrar func(server *grpc.Server)

// ServerOptions configures health reporting and reflection for one server.
type ServerOptions struct {
	ServiceName      string
	EnableReflection bool
}

// Listen opens the configured transport (TCP or UDS) and returns the
// listener plus a cleanup func that removes the UDS socket file, if any.
func Listen(cfg config.TransportConfig) (net.Listener, func(), error) {
	var (
		listener net.Listener
		err      error
	)
	switch cfg.Type {
	case config.TransportUDS:
		_ = os.Remove(cfg.Address)
		listener, err = net.Listen("unix", cfg.Address)
	default:
		listener, err = net.Listen("tcp", cfg.Address)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("grpcx: listen on %s: %w", cfg.Address, err)
	}

	cleanup := func() {
		if cfg.Type == config.TransportUDS {
			_ = os.Remove(cfg.Address)
		}
	}
	return listener, cleanup, nil
}

// NewServer builds a *grpc.Server with registrar's services plus a
// standard health service, wired SERVING for both the empty service name
// and opts.ServiceName.
func NewServer(registrar Registrar, opts ServerOptions) *grpc.Server {
	server := grpc.NewServer()
	registrar(server)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	if opts.ServiceName != "" {
		healthServer.SetServingStatus(opts.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	if opts.EnableReflection {
		reflection.Register(server)
	}
	return server
}

// Run listens, serves, and blocks until SIGINT/SIGTERM triggers a graceful
// stop.
func Run(cfg config.TransportConfig, registrar Registrar, opts ServerOptions) error {
	log := logging.Component("grpcx")

	listener, cleanup, err := Listen(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	server := NewServer(registrar, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info().Str("service", opts.ServiceName).Msg("shutting down")
		server.GracefulStop()
	}()

	log.Info().Str("service", opts.ServiceName).Str("address", cfg.Address).Str("transport", string(cfg.Type)).Msg("server started")
	return server.Serve(listener)
}
