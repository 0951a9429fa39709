package grpchealth

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/logging"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/status"
)

func TestHealthMirrorsStore(t *testing.T) {
	store := status.NewStore(true)
	srv := NewServer(Config{
		ListenAddr:  "127.0.0.1:0",
		ServiceName: "vmsim",
		Logger:      logging.NewNopLogger(),
	}, store)

	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop()

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) failed: %v", service, err)
		}
		return resp.GetStatus()
	}

	for _, svc := range []string{"", "vmsim"} {
		if got := check(svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %v, want SERVING", svc, got)
		}
	}

	store.Toggle()

	for _, svc := range []string{"", "vmsim"} {
		if got := check(svc); got != healthpb.HealthCheckResponse_NOT_SERVING {
			t.Errorf("Check(%q) after toggle = %v, want NOT_SERVING", svc, got)
		}
	}

	store.Toggle()

	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Check after second toggle = %v, want SERVING", got)
	}
}

func TestStartTwice(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", Logger: logging.NewNopLogger()}, status.NewStore(true))

	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop()

	if err := srv.Start(); err == nil {
		t.Error("expected error on second Start")
	}
}
