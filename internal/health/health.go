// Package health serves grpc.health.v1 on the gRPC port, reporting
// NOT_SERVING while the database is unreachable.
package health

import (
	"context"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"studio-booking-api/internal/ratelimit"
)

const Service = "studio.booking"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	db     Pinger
	every  time.Duration
	stop   chan struct{}
}

func New(db Pinger, limiter *ratelimit.Limiter) *Server {
	hs := health.NewServer()
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(RateLimit(limiter)))
	healthpb.RegisterHealthServer(srv, hs)
	return &Server{grpc: srv, health: hs, db: db, every: 15 * time.Second, stop: make(chan struct{})}
}

// Check pings the database once and updates both the overall and the
// named service status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(ctx); err != nil {
		log.Printf("health: db ping: %v", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(Service, st)
	return st
}

func (s *Server) Serve(lis net.Listener) error {
	s.Check(context.Background())
	go s.watch()
	log.Printf("grpc health on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

func (s *Server) watch() {
	t := time.NewTicker(s.every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.Check(ctx)
			cancel()
		}
	}
}

func (s *Server) Stop() {
	close(s.stop)
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// RateLimit throttles probes per peer address.
func RateLimit(rl *ratelimit.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if rl == nil {
			return next(ctx, req)
		}
		ip := "unknown"
		if p, ok := peer.FromContext(ctx); ok {
			if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
				ip = host
			} else {
				ip = p.Addr.String()
			}
		}
		if !rl.Allow("grpc:" + ip) {
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return next(ctx, req)
	}
}
