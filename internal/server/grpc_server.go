package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/muzz-connect/internal/config"
)

// NewGRPCServer builds a gRPC server with every registrar applied.
func NewGRPCServer(registrars ...Registrar) *grpc.Server {
	grpcServer := grpc.NewServer()

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	return grpcServer
}

// StartGRPCServer listens on the configured address and serves until ctx is
// canceled, then stops gracefully.
func StartGRPCServer(ctx context.Context, cfg *config.Config, registrars ...Registrar) error {
	addr := cfg.GRPCAddr()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ServeGRPC(ctx, lis, NewGRPCServer(registrars...))
}

// ServeGRPC serves srv on lis until ctx is canceled or Serve fails.
func ServeGRPC(ctx context.Context, lis net.Listener, srv *grpc.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		srv.GracefulStop()
		<-errCh
		return ctx.Err()
	}
}

// GRPCService runs StartGRPCServer under the supervisor. Each restart builds
// a fresh grpc.Server from the same registrars.
type GRPCService struct {
	cfg        *config.Config
	registrars []Registrar
	log        *slog.Logger
}

func NewGRPCService(cfg *config.Config, log *slog.Logger, registrars ...Registrar) *GRPCService {
	return &GRPCService{cfg: cfg, registrars: registrars, log: log}
}

func (s *GRPCService) Serve(ctx context.Context) error {
	s.log.Info("starting gRPC server", "addr", s.cfg.GRPCAddr())
	return StartGRPCServer(ctx, s.cfg, s.registrars...)
}

func (s *GRPCService) String() string { return "grpc-server" }
