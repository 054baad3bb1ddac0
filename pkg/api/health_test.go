package api

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yourusername/quantstream/pkg/session"
)

func TestHealthServer_TracksSessionState(t *testing.T) {
	h := NewHealthServer("127.0.0.1:0")
	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	conn, err := grpc.NewClient("passthrough:///"+h.Addr(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	hc := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		return resp.GetStatus()
	}

	steps := []struct {
		state session.State
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{session.StateIdle, healthpb.HealthCheckResponse_NOT_SERVING},
		{session.StateSeeding, healthpb.HealthCheckResponse_NOT_SERVING},
		{session.StateLive, healthpb.HealthCheckResponse_SERVING},
		{session.StateFailed, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, st := range steps {
		h.SetState(st.state)
		for _, svc := range []string{"", SessionService} {
			if got := check(svc); got != st.want {
				t.Errorf("state %s, service %q: status = %v, want %v", st.state, svc, got, st.want)
			}
		}
	}
}
