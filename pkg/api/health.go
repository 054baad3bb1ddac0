package api

import (
	"fmt"
	"log"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yourusername/quantstream/pkg/session"
)

// SessionService is the health service name that tracks the pair session.
// The overall ("") service mirrors it.
const SessionService = "quantstream.PairSession"

// HealthServer serves grpc.health.v1, reporting SERVING only while the
// session is live.
type HealthServer struct {
	addr   string
	server *grpc.Server
	health *health.Server

	mu  sync.Mutex
	lis net.Listener
}

// NewHealthServer creates a health server for addr ("host:port").
func NewHealthServer(addr string) *HealthServer {
	h := &HealthServer{
		addr:   addr,
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.SetState(session.StateIdle)
	return h
}

// SetState maps a session state to a serving status. It matches the
// signature of session.Manager.OnStateChange.
func (h *HealthServer) SetState(state session.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == session.StateLive {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(SessionService, status)
}

// Start listens and serves in the background.
func (h *HealthServer) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.mu.Lock()
	h.lis = lis
	h.mu.Unlock()

	log.Printf("[gRPC] Health service listening on %s", lis.Addr())
	go func() {
		if err := h.server.Serve(lis); err != nil {
			log.Printf("[gRPC] Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (h *HealthServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lis == nil {
		return ""
	}
	return h.lis.Addr().String()
}

// Stop marks everything NOT_SERVING and stops the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
	log.Println("[gRPC] Health service stopped")
}
