package server_test

import (
	"RailLedger/internal/observability"
	"RailLedger/internal/server"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealth_FollowsServing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hc := observability.NewHealthChecker()
	srv := server.NewGRPCServer("127.0.0.1:0", "127.0.0.1:0", hc, zerolog.Nop())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeGRPC(ctx, lis)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		callCtx, done := context.WithTimeout(ctx, 5*time.Second)
		defer done()
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: server.ServiceName})
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		return resp.Status
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("got %v, want NOT_SERVING", got)
	}
	srv.SetServing(true)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("got %v, want SERVING", got)
	}
	if !hc.IsReady() {
		t.Error("expected HTTP readiness to follow")
	}
}

func TestHandler_Probes(t *testing.T) {
	hc := observability.NewHealthChecker()
	srv := server.NewGRPCServer("", "", hc, zerolog.Nop())
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before serving: got %d, want 503", rec.Code)
	}

	srv.SetServing(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz after serving: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d, want 200", rec.Code)
	}
}
