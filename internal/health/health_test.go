package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"studio-booking-api/internal/clock"
	"studio-booking-api/internal/ratelimit"
)

type pinger struct{ err error }

func (p *pinger) Ping(context.Context) error { return p.err }

func start(t *testing.T, db Pinger, rl *ratelimit.Limiter) healthpb.HealthClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(db, rl)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestServing(t *testing.T) {
	c := start(t, &pinger{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status %v", resp.Status)
	}
}

func TestNotServingWhenDatabaseDown(t *testing.T) {
	s := New(&pinger{err: errors.New("connection refused")}, nil)
	if st := s.Check(context.Background()); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status %v", st)
	}
}

func TestProbeRateLimit(t *testing.T) {
	rl := ratelimit.PerMinute(1, clock.NewManual(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))
	c := start(t, &pinger{}, rl)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.Check(ctx, &healthpb.HealthCheckRequest{}); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{})
	if status.Code(err) != codes.ResourceExhausted {
		t.Errorf("expected ResourceExhausted, got %v", err)
	}
}
