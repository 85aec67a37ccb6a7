// Package grpc implements the gRPC transport for tts-server.
//
// It serves the standard grpc.health.v1 service so that gRPC-aware load
// balancers and orchestrators can probe the daemon, plus server reflection
// for grpcurl. The service status tracks the daemon's readiness.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/nadzzz/tts-server/internal/health"
)

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	health *grpchealth.Server

	mu     sync.Mutex
	server *grpc.Server
}

// New creates a new gRPC transport on the given port. The health service
// starts out NOT_SERVING.
func New(port int) *Transport {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(health.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Transport{port: port, health: hs}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// SetServing flips the reported health status of the server and of the
// tts_server service.
func (t *Transport) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	t.health.SetServingStatus("", status)
	t.health.SetServingStatus(health.ServiceName, status)
}

// Listen binds the configured port and serves until ctx is cancelled.
func (t *Transport) Listen(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return t.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, t.health)
	reflection.Register(srv)

	t.mu.Lock()
	t.server = srv
	t.mu.Unlock()

	slog.Info("grpc transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		_ = t.Close()
	}()

	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close marks every service NOT_SERVING and gracefully stops the server.
func (t *Transport) Close() error {
	t.health.Shutdown()

	t.mu.Lock()
	srv := t.server
	t.mu.Unlock()

	if srv != nil {
		srv.GracefulStop()
	}
	return nil
}
